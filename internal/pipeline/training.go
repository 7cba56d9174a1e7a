package pipeline

import (
	"math/rand/v2"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"finlit-rag/internal/config"
	"finlit-rag/internal/helper"
	"finlit-rag/internal/models"

	"github.com/rs/zerolog/log"
)

type topic struct {
	name      string
	keywords  []string
	questions []string
}

// topics is ordered; on equal keyword counts the earlier topic wins.
var topics = []topic{
	{"50/30/20",
		[]string{"50/30/20", "50-30-20", "50 30 20", "budgeting rule", "50% for needs", "30% for wants", "20% for savings"},
		[]string{
			"What is the 50/30/20 budgeting rule?",
			"How do I apply the 50/30/20 rule?",
			"How should I divide my salary using the 50/30/20 rule?",
			"Can you give an example of 50/30/20 budgeting?",
			"What percentage of my income should go to savings?",
		}},
	{"savings",
		[]string{"saving", "emergency fund", "savings account", "pay yourself first", "save money", "savings cushion", "start saving"},
		[]string{
			"How can I start saving money?",
			"What is 'pay yourself first'?",
			"How much should I save each month?",
			"What is an emergency fund?",
			"How do I build an emergency fund?",
			"Why is saving important for young adults?",
			"How can I save money on a low salary?",
		}},
	{"budget",
		[]string{"budget", "expense", "spending", "money management", "track your", "financial plan", "income allocation"},
		[]string{
			"How do I create a budget?",
			"What are some budgeting tips?",
			"How can I track my expenses?",
			"How do I stick to my budget?",
			"What are common budgeting mistakes?",
			"How can I budget on a RM2000 salary?",
		}},
	{"debt",
		[]string{"debt", "credit card", "loan", "bnpl", "buy now pay later", "repayment", "borrow", "owing money"},
		[]string{
			"How can I avoid getting into debt?",
			"What should I know about credit cards?",
			"How do I pay off my debts?",
			"What is the debt snowball method?",
			"Is BNPL (Buy Now Pay Later) a good idea?",
			"How do young Malaysians get into debt?",
		}},
	{"investment",
		[]string{"invest", "compound interest", "grow your money", "returns", "portfolio", "wealth building"},
		[]string{
			"How does compound interest work?",
			"When should I start investing?",
			"What are basic investment options in Malaysia?",
			"What is EPF/KWSP?",
			"How can compound interest help me build wealth?",
		}},
	{"retirement",
		[]string{"retirement", "retire", "epf", "kwsp", "pension", "after retirement"},
		[]string{
			"How do I plan for retirement?",
			"What habits help with early retirement?",
			"How much do I need for retirement in Malaysia?",
			"What expenses should I expect after retirement?",
		}},
	{"tax",
		[]string{"tax", "lhdn", "income tax", "tax relief", "tax deduction", "filing", "pcb"},
		[]string{
			"How do I file income tax in Malaysia?",
			"What tax deductions can I claim?",
			"When is the tax filing deadline in Malaysia?",
			"What is LHDN and how do I use it?",
		}},
	{"insurance",
		[]string{"insurance", "medical cover", "protection", "policy", "coverage", "insured"},
		[]string{
			"Why is medical insurance important?",
			"What types of insurance should I have?",
			"How do I choose the right insurance?",
			"What insurance do young adults need?",
		}},
	{"car",
		[]string{"car", "vehicle", "automobile", "car loan", "car financing", "first car"},
		[]string{
			"Should I buy a new or used car?",
			"How do I budget for a car purchase?",
			"What should I know about car loans?",
			"Tips for buying my first car in Malaysia?",
		}},
	{"house",
		[]string{"house", "home", "property", "housing loan", "buy vs rent", "homeowner", "mortgage"},
		[]string{
			"Should I buy or rent a house in Malaysia?",
			"How do I save for a house down payment?",
			"What should first-time homebuyers know?",
			"What are the costs of owning a home?",
		}},
	{"scam",
		[]string{"scam", "fraud", "phishing", "trick", "con", "suspicious", "deceive"},
		[]string{
			"How can I avoid financial scams?",
			"What are common online scams to watch for?",
			"How do I protect myself from fraud?",
		}},
	{"first_salary",
		[]string{"first salary", "fresh graduate", "first job", "young adult", "starting work", "first paycheck"},
		[]string{
			"What should I do with my first salary?",
			"How should fresh graduates manage their money?",
			"What financial mistakes do young adults make?",
			"Tips for managing money in my 20s?",
		}},
	{"mindset",
		[]string{"mindset", "financial freedom", "wealth mindset", "money mindset", "attitude", "discipline"},
		[]string{
			"How does mindset affect financial success?",
			"What is financial freedom?",
			"How can I change my money mindset?",
		}},
	{"gig_worker",
		[]string{"gig worker", "freelancer", "self-employed", "gig economy", "side hustle"},
		[]string{
			"How should gig workers manage their finances?",
			"What savings tips are there for freelancers?",
		}},
}

const generalTopic = "general"

var generalQuestions = []string{
	"What financial advice do you have for Malaysian youth?",
	"How can I be better with money?",
	"What are the basics of personal finance?",
}

var sentenceSkipWords = []string{
	"Click here", "Read also", "Table of Contents", "Terms &",
	"Member Employer", "Related Reads", "Date:", "Myra Athena",
}

const (
	minCleanLength    = 100
	minSentenceLength = 40
	maxSentenceLength = 400
	maxUpperRatio     = 0.4
	minResponseLength = 80
	responseSentences = 5
	questionsPerChunk = 2
	dedupPrefix       = 100
)

// IdentifyTopic returns the topic with the most keyword hits, or general.
func IdentifyTopic(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := generalTopic, 0
	for _, t := range topics {
		score := 0
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = t.name, score
		}
	}
	return best
}

func questionsFor(topicName string) []string {
	for _, t := range topics {
		if t.name == topicName {
			return t.questions
		}
	}
	return generalQuestions
}

// splitSentences splits after ., ! or ? followed by whitespace.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
		prev  rune
	)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) && (prev == '.' || prev == '!' || prev == '?') {
			j := i
			for j < len(text) {
				r2, s2 := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += s2
			}
			out = append(out, text[start:i])
			start, i, prev = j, j, 0
			continue
		}
		prev = r
		i += size
	}
	return append(out, text[start:])
}

// GoodSentences keeps informative sentences: 40 to 400 characters, no
// navigation phrases and not mostly capitals.
func GoodSentences(text string) []string {
	var good []string
	for _, s := range splitSentences(text) {
		s = strings.TrimSpace(s)
		n := utf8.RuneCountInString(s)
		if n < minSentenceLength || n > maxSentenceLength {
			continue
		}
		if containsAny(s, sentenceSkipWords) {
			continue
		}
		upper := 0
		for _, r := range s {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if float64(upper)/float64(n) > maxUpperRatio {
			continue
		}
		good = append(good, s)
	}
	return good
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type QAPair struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
	Topic      string `json:"topic"`
	Source     string `json:"source"`
}

// pairsFromChunk builds up to two question/answer pairs from one chunk. The
// answer is the first five good sentences of the cleaned text.
func pairsFromChunk(c models.Chunk, source string, minChunkLength int, rng *rand.Rand) []QAPair {
	if utf8.RuneCountInString(c.Text) < minChunkLength {
		return nil
	}
	text := CleanText(c.Text)
	if utf8.RuneCountInString(text) < minCleanLength {
		return nil
	}
	sentences := GoodSentences(text)
	if len(sentences) < 2 {
		return nil
	}
	response := strings.Join(sentences[:min(responseSentences, len(sentences))], " ")
	if utf8.RuneCountInString(response) < minResponseLength {
		return nil
	}

	topicName := IdentifyTopic(text)
	questions := questionsFor(topicName)
	n := min(questionsPerChunk, len(questions))
	pairs := make([]QAPair, 0, n)
	for _, idx := range rng.Perm(len(questions))[:n] {
		pairs = append(pairs, QAPair{Prompt: questions[idx], Completion: response, Topic: topicName, Source: source})
	}
	return pairs
}

type TrainingOptions struct {
	InputDir       string
	OutputDir      string
	SkipFiles      []string
	MinChunkLength int
	Seed           uint64
}

func (o *TrainingOptions) applyDefaults() {
	if o.InputDir == "" {
		o.InputDir = "data_improved_chunks"
	}
	if o.OutputDir == "" {
		o.OutputDir = "train_model"
	}
	if o.SkipFiles == nil {
		o.SkipFiles = []string{"Financial Fraud Prevention and Detection"}
	}
	if o.MinChunkLength == 0 {
		o.MinChunkLength = config.DefaultMinChunkLength
	}
}

type TrainingStats struct {
	Files   int            `json:"files"`
	Skipped []string       `json:"skipped,omitempty"`
	Pairs   int            `json:"pairs"`
	Unique  int            `json:"unique"`
	Topics  map[string]int `json:"topics"`
}

func (o TrainingOptions) skip(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range o.SkipFiles {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRecord struct {
	Messages []chatMessage `json:"messages"`
}

type instructionRecord struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

type simpleRecord struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// GenerateTrainingData turns cleaned chunk files into fine-tuning data in
// chat, instruction and prompt/completion JSONL formats. The same seed gives
// the same output.
func GenerateTrainingData(opts TrainingOptions) (TrainingStats, error) {
	opts.applyDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	files, err := jsonlFiles(opts.InputDir)
	if err != nil {
		return TrainingStats{}, err
	}
	stats := TrainingStats{Files: len(files), Topics: map[string]int{}}

	var pairs []QAPair
	for _, path := range files {
		name := filepath.Base(path)
		if opts.skip(name) {
			log.Info().Str("file", name).Msg("Skipping")
			stats.Skipped = append(stats.Skipped, name)
			continue
		}
		chunks, _, err := ReadJSONL(path)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Could not read chunk file")
			continue
		}
		for _, c := range chunks {
			pairs = append(pairs, pairsFromChunk(c, name, opts.MinChunkLength, rng)...)
		}
	}
	stats.Pairs = len(pairs)
	for _, p := range pairs {
		stats.Topics[p.Topic]++
	}

	rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	unique := dedupPairs(pairs)
	stats.Unique = len(unique)

	chat := make([]chatRecord, len(unique))
	instruction := make([]instructionRecord, len(unique))
	simple := make([]simpleRecord, len(unique))
	for i, p := range unique {
		chat[i] = chatRecord{Messages: []chatMessage{{"user", p.Prompt}, {"assistant", p.Completion}}}
		instruction[i] = instructionRecord{Instruction: p.Prompt, Output: p.Completion}
		simple[i] = simpleRecord{Prompt: p.Prompt, Completion: p.Completion}
	}
	if err := writeLines(filepath.Join(opts.OutputDir, "finance_chat.jsonl"), chat); err != nil {
		return stats, err
	}
	if err := writeLines(filepath.Join(opts.OutputDir, "finance_instruction.jsonl"), instruction); err != nil {
		return stats, err
	}
	if err := writeLines(filepath.Join(opts.OutputDir, "finance_simple.jsonl"), simple); err != nil {
		return stats, err
	}
	return stats, nil
}

// dedupPairs keeps the first pair for each prompt and completion prefix.
func dedupPairs(pairs []QAPair) []QAPair {
	type key struct{ prompt, prefix string }
	seen := make(map[key]bool, len(pairs))
	var out []QAPair
	for _, p := range pairs {
		k := key{p.Prompt, helper.Truncate(p.Completion, dedupPrefix)}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
