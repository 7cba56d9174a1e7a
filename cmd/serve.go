package main

import (
	"fmt"
	"os"
	"strings"

	"finlit-rag/internal/articles"
	"finlit-rag/internal/fintools"
	"finlit-rag/internal/helper"
	"finlit-rag/internal/llmservice"
	"finlit-rag/internal/quiz"
	"finlit-rag/internal/rag"
	"finlit-rag/internal/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const advisorPrompt = `You are a financial literacy assistant for young Malaysians.
Use the calculators for any arithmetic and the search tools for facts about
Malaysian institutions. Answer in plain language and mention amounts in RM.`

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the study web app",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		vdb, _, err := openVectorDB(ctx)
		if err != nil {
			return err
		}
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		mode, err := rag.ParseResponseMode(cfg.RAG.DefaultMode)
		if err != nil {
			return err
		}
		models := llmservice.NewModelCache(&cfg.LLM)
		assembler := rag.NewAssembler(vdb, cfg.RAG)
		opts := llmservice.OptionsFromConfig(&cfg.LLM)
		log.Info().
			Str("model", cfg.LLM.Model).
			Str("mode", mode.String()).
			Int("max_chars", assembler.MaxChars()).
			Msg("Retrieval chain ready")

		srv := server.New(server.Options{
			Config:   cfg.Server,
			Sessions: quiz.NewSessions(cfg.LLM.Model, mode),
			Store:    st,
			Chains: func(model string) (server.Asker, error) {
				m, err := models.Get(model)
				if err != nil {
					return nil, err
				}
				return rag.NewChain(assembler, llmservice.NewClient(m, opts)), nil
			},
			Formatter: rag.NewFormatter(articles.MustDefault()),
			Tools:     fintools.NewToolbox(vdb),
			Searcher:  vdb,
			Models:    cfg.LLM.AllowedModels,
		})
		return srv.Run(ctx)
	},
}

var (
	askMode  string
	askModel string
	askTools bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the command line",
	Long: `Answers a question through the retrieval chain and prints the answer
followed by its sources. With --tools the model may call the finance
calculators and knowledge search instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := strings.Join(args, " ")

		vdb, _, err := openVectorDB(ctx)
		if err != nil {
			return err
		}
		model, err := llmservice.NewModelCache(&cfg.LLM).Get(askModel)
		if err != nil {
			return err
		}
		opts := llmservice.OptionsFromConfig(&cfg.LLM)

		if askTools {
			answer, err := fintools.NewToolbox(vdb).Converse(ctx, model, advisorPrompt, question, opts.CallOptions()...)
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		}

		mode := askMode
		if mode == "" {
			mode = cfg.RAG.DefaultMode
		}
		parsed, err := rag.ParseResponseMode(mode)
		if err != nil {
			return err
		}
		ans, err := rag.NewChain(rag.NewAssembler(vdb, cfg.RAG), llmservice.NewClient(model, opts)).Ask(ctx, question, parsed)
		if err != nil {
			return err
		}
		log.Debug().Str("expanded", ans.ExpandedQuery).Int("sources", len(ans.Sources)).Msg("Context assembled")

		for frag, err := range ans.Stream {
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, frag)
		}
		fmt.Println()
		if len(ans.Sources) > 0 {
			fmt.Println()
			helper.PrettyPrint(rag.NewFormatter(articles.MustDefault()).FormatAll(ans.Sources))
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askMode, "mode", "", "Response mode: strict, hybrid or model-only")
	askCmd.Flags().StringVar(&askModel, "model", "", "Generation model, one of llm.allowed_models")
	askCmd.Flags().BoolVar(&askTools, "tools", false, "Let the model call the finance calculators")
}
