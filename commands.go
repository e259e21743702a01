package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/fabfab/policynth/api"
	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/database"
	"github.com/fabfab/policynth/diagnostics"
	"github.com/fabfab/policynth/engine"
	"github.com/fabfab/policynth/knowledge"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			eng, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup.close()

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           api.New(cfg, eng, logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Printf("listening on %s (llm %s/%s, index %s)", cfg.ListenAddr, strings.ToUpper(cfg.LLM.Provider), cfg.LLM.Model, cfg.IndexBackend)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
			defer done()
			logger.Println("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	return cmd
}

func askCmd() *cobra.Command {
	var (
		doc       string
		questions []string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer questions about one document from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			questions = append(questions, args...)
			if strings.TrimSpace(doc) == "" {
				return fmt.Errorf("--doc is required")
			}
			if len(questions) == 0 {
				return fmt.Errorf("at least one question is required")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			eng, cleanup, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup.close()

			bar := progressbar.NewOptions(len(questions),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("Answering"),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
			)

			resp, err := eng.Process(ctx, engine.Request{
				DocumentRef: doc,
				Questions:   questions,
				Progress:    func(done, total int) { _ = bar.Set(done) },
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"answers": resp.Answers})
			}
			for i, answer := range resp.Answers {
				fmt.Fprintf(out, "Q%d: %s\nA%d: %s\n\n", i+1, questions[i], i+1, answer)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&doc, "doc", "", "document URL or path")
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "question to ask (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print answers as JSON")
	return cmd
}

func classifyCmd() *cobra.Command {
	var (
		rulesOnly bool
		question  string
	)
	cmd := &cobra.Command{
		Use:   "classify [question]",
		Short: "Show how a question is classified",
		RunE: func(cmd *cobra.Command, args []string) error {
			if question == "" {
				question = strings.Join(args, " ")
			}
			if strings.TrimSpace(question) == "" {
				return fmt.Errorf("a question is required")
			}

			classifier, err := buildClassifier(cfg, rulesOnly, logger)
			if err != nil {
				return err
			}

			d := classifier.Classify(cmd.Context(), question)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Descriptor      any      `json:"descriptor"`
				RankingSections []string `json:"ranking_sections"`
			}{d, d.RankingSections()})
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to classify")
	cmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "skip the model and use the rule cascade")
	return cmd
}

func diagnosticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Inspect recorded request diagnostics",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent requests from the bolt store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openBolt(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.List(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range reports {
				status := "ok"
				if r.Failed() {
					status = "failed: " + r.Err
				}
				fmt.Fprintf(out, "%s  %s  %s  chunks=%d questions=%d  %s\n",
					r.StartedAt.Format(time.RFC3339), r.RequestID, r.DocumentRef, len(r.Chunks), len(r.Questions), status)
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of requests to show")

	show := &cobra.Command{
		Use:   "show [request-id]",
		Short: "Print one request report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openBolt(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Get(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	sections := &cobra.Command{
		Use:   "sections",
		Short: "Summarise retrieved section types per intent from the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
			if err != nil {
				return fmt.Errorf("neo4j connection: %w", err)
			}
			defer driver.Close(ctx)

			usage, err := knowledge.NewGraphRecorder(driver).SectionUsage(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, u := range usage {
				fmt.Fprintf(out, "%-16s %-12s %5d  mean rank %.2f\n", u.IntentType, u.SectionType, u.Retrievals, u.MeanRank)
			}
			return nil
		},
	}

	cmd.AddCommand(list, show, sections)
	return cmd
}

func openBolt(cfg config.Config) (*diagnostics.BoltStore, error) {
	if strings.TrimSpace(cfg.Diagnostics.BoltPath) == "" {
		return nil, fmt.Errorf("DIAGNOSTICS_BOLT_PATH not set")
	}
	return diagnostics.OpenBoltStore(cfg.Diagnostics.BoltPath)
}
