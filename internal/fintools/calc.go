// Package fintools provides exact personal-finance calculators and
// knowledge-base lookups that the assistant and the web UI can call. All
// amounts are in Malaysian ringgit.
package fintools

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrInvalidInput = errors.New("invalid input")

var amounts = message.NewPrinter(language.English)

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func round1(x float64) float64 { return math.Round(x*10) / 10 }

// rm formats an amount like RM1,234.50.
func rm(x float64) string { return amounts.Sprintf("RM%.2f", x) }

type CompoundInput struct {
	Principal           float64 `json:"principal"`
	AnnualRate          float64 `json:"annual_rate"`
	Years               int     `json:"years"`
	MonthlyContribution float64 `json:"monthly_contribution"`
}

type CompoundResult struct {
	Inputs struct {
		PrincipalRM           float64 `json:"principal_rm"`
		AnnualRatePercent     float64 `json:"annual_rate_percent"`
		Years                 int     `json:"years"`
		MonthlyContributionRM float64 `json:"monthly_contribution_rm"`
	} `json:"inputs"`
	Results struct {
		FinalAmountRM      float64 `json:"final_amount_rm"`
		TotalContributedRM float64 `json:"total_contributed_rm"`
		InterestEarnedRM   float64 `json:"interest_earned_rm"`
		GrowthPercentage   float64 `json:"growth_percentage"`
	} `json:"results"`
	Explanation string `json:"explanation"`
}

// CompoundInterest grows the principal yearly and, when a monthly
// contribution is given, adds an annuity compounded monthly at rate/12.
func CompoundInterest(in CompoundInput) (CompoundResult, error) {
	var out CompoundResult
	switch {
	case in.Principal < 0 || in.MonthlyContribution < 0:
		return out, fmt.Errorf("%w: amounts must not be negative", ErrInvalidInput)
	case in.Years < 0:
		return out, fmt.Errorf("%w: years must not be negative", ErrInvalidInput)
	case in.AnnualRate <= -100:
		return out, fmt.Errorf("%w: annual rate must be above -100%%", ErrInvalidInput)
	}

	rate := in.AnnualRate / 100
	final := in.Principal * math.Pow(1+rate, float64(in.Years))
	contributed := in.Principal
	if in.MonthlyContribution > 0 {
		months := float64(in.Years * 12)
		monthly := rate / 12
		annuity := in.MonthlyContribution * months
		if monthly != 0 {
			annuity = in.MonthlyContribution * ((math.Pow(1+monthly, months) - 1) / monthly)
		}
		final += annuity
		contributed += in.MonthlyContribution * months
	}
	if contributed == 0 {
		return out, fmt.Errorf("%w: nothing is invested", ErrInvalidInput)
	}

	out.Inputs.PrincipalRM = in.Principal
	out.Inputs.AnnualRatePercent = in.AnnualRate
	out.Inputs.Years = in.Years
	out.Inputs.MonthlyContributionRM = in.MonthlyContribution
	out.Results.FinalAmountRM = round2(final)
	out.Results.TotalContributedRM = round2(contributed)
	out.Results.InterestEarnedRM = round2(final - contributed)
	out.Results.GrowthPercentage = round2((final/contributed - 1) * 100)
	out.Explanation = fmt.Sprintf("After %d years, %s at %g%% grows to %s", in.Years, rm(in.Principal), in.AnnualRate, rm(final))
	return out, nil
}

type Allocation struct {
	AmountRM float64  `json:"amount_rm"`
	Includes []string `json:"includes"`
}

type BudgetResult struct {
	MonthlyIncomeRM float64 `json:"monthly_income_rm"`
	Breakdown       struct {
		Needs   Allocation `json:"needs_50_percent"`
		Wants   Allocation `json:"wants_30_percent"`
		Savings Allocation `json:"savings_20_percent"`
	} `json:"budget_breakdown"`
	Tip string `json:"tip"`
}

func Budget503020(monthlyIncome float64) (BudgetResult, error) {
	var out BudgetResult
	if monthlyIncome <= 0 {
		return out, fmt.Errorf("%w: monthly income must be positive", ErrInvalidInput)
	}
	out.MonthlyIncomeRM = monthlyIncome
	out.Breakdown.Needs = Allocation{round2(monthlyIncome * 0.50),
		[]string{"Rent/mortgage", "Utilities", "Groceries", "Transportation", "Insurance", "Minimum debt payments"}}
	out.Breakdown.Wants = Allocation{round2(monthlyIncome * 0.30),
		[]string{"Dining out", "Entertainment", "Shopping", "Hobbies", "Subscriptions"}}
	out.Breakdown.Savings = Allocation{round2(monthlyIncome * 0.20),
		[]string{"Emergency fund", "EPF top-up", "Investments", "Extra debt payments", "Savings goals"}}
	out.Tip = "Start with this as a guideline and adjust based on your situation. High cost of living areas may need 60/20/20."
	return out, nil
}

// coverageMonths is how many months of expenses to hold per job-risk level.
var coverageMonths = map[string]int{"low": 3, "medium": 6, "high": 9}

type EmergencyFundResult struct {
	Inputs struct {
		MonthlyExpensesRM float64 `json:"monthly_expenses_rm"`
		RiskLevel         string  `json:"risk_level"`
	} `json:"inputs"`
	Recommendation struct {
		MonthsCoverage int     `json:"months_coverage"`
		TargetAmountRM float64 `json:"target_amount_rm"`
		MinimumRM      float64 `json:"minimum_rm"`
		IdealRM        float64 `json:"ideal_rm"`
	} `json:"recommendation"`
	SavingsPlan map[string]string `json:"savings_plan"`
	Tip         string            `json:"tip"`
}

// EmergencyFundTarget sizes the fund by job stability. Unknown risk levels
// count as medium.
func EmergencyFundTarget(monthlyExpenses float64, riskLevel string) (EmergencyFundResult, error) {
	var out EmergencyFundResult
	if monthlyExpenses <= 0 {
		return out, fmt.Errorf("%w: monthly expenses must be positive", ErrInvalidInput)
	}
	if riskLevel == "" {
		riskLevel = "medium"
	}
	months, ok := coverageMonths[strings.ToLower(riskLevel)]
	if !ok {
		months = coverageMonths["medium"]
	}
	target := monthlyExpenses * float64(months)

	out.Inputs.MonthlyExpensesRM = monthlyExpenses
	out.Inputs.RiskLevel = riskLevel
	out.Recommendation.MonthsCoverage = months
	out.Recommendation.TargetAmountRM = round2(target)
	out.Recommendation.MinimumRM = round2(monthlyExpenses * 3)
	out.Recommendation.IdealRM = round2(monthlyExpenses * 6)
	out.SavingsPlan = map[string]string{
		"save_500_per_month":  fmt.Sprintf("%.0f months to reach target", math.Round(target/500)),
		"save_1000_per_month": fmt.Sprintf("%.0f months to reach target", math.Round(target/1000)),
	}
	out.Tip = "Keep emergency fund in high-interest savings account for easy access."
	return out, nil
}

type DebtStatus string

const (
	DebtHealthy  DebtStatus = "Healthy"
	DebtModerate DebtStatus = "Moderate"
	DebtHigh     DebtStatus = "High"
	DebtCritical DebtStatus = "Critical"
)

type DebtResult struct {
	Inputs struct {
		MonthlyIncomeRM       float64 `json:"monthly_income_rm"`
		MonthlyDebtPaymentsRM float64 `json:"monthly_debt_payments_rm"`
	} `json:"inputs"`
	Assessment struct {
		DebtToIncomeRatio float64    `json:"debt_to_income_ratio"`
		Status            DebtStatus `json:"status"`
		Advice            string     `json:"advice"`
	} `json:"assessment"`
	Benchmarks map[string]string `json:"benchmarks"`
	Tip        string            `json:"tip"`
}

// DebtRatio classifies monthly debt payments as a share of gross income.
// Each band includes its upper bound: 30% is still healthy.
func DebtRatio(monthlyIncome, monthlyDebtPayments float64) (DebtResult, error) {
	var out DebtResult
	if monthlyIncome <= 0 {
		return out, fmt.Errorf("%w: monthly income must be positive", ErrInvalidInput)
	}
	if monthlyDebtPayments < 0 {
		return out, fmt.Errorf("%w: debt payments must not be negative", ErrInvalidInput)
	}
	dti := monthlyDebtPayments / monthlyIncome * 100

	a := &out.Assessment
	switch {
	case dti <= 30:
		a.Status, a.Advice = DebtHealthy, "Your debt level is manageable. Consider investing the extra money."
	case dti <= 40:
		a.Status, a.Advice = DebtModerate, "Be cautious about taking new debt. Focus on paying down existing debt."
	case dti <= 50:
		a.Status, a.Advice = DebtHigh, "Your debt is becoming burdensome. Prioritize debt repayment and avoid new debt."
	default:
		a.Status, a.Advice = DebtCritical, "Seek financial counseling. Consider AKPK (Agensi Kaunseling dan Pengurusan Kredit)."
	}
	a.DebtToIncomeRatio = round1(dti)

	out.Inputs.MonthlyIncomeRM = monthlyIncome
	out.Inputs.MonthlyDebtPaymentsRM = monthlyDebtPayments
	out.Benchmarks = map[string]string{
		"healthy":  "Below 30%",
		"moderate": "30-40%",
		"high":     "40-50%",
		"critical": "Above 50%",
	}
	out.Tip = "Banks typically won't approve loans if DTI exceeds 60-70%."
	return out, nil
}

// MalaysianContext is background the assistant can lean on for local terms.
const MalaysianContext = `Malaysian Financial Context:
- Currency: Ringgit Malaysia (RM)
- Retirement fund: EPF (Employees Provident Fund) / KWSP
- Tax authority: LHDN (Lembaga Hasil Dalam Negeri)
- Credit counseling: AKPK (Agensi Kaunseling dan Pengurusan Kredit)
- Student loan: PTPTN
- Popular investments: ASB, ASM, Unit Trusts
- Islamic finance: Widely available (Takaful, Islamic banking)`
