package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/store"
)

func newDeckCommand(ctx *commandContext) *cobra.Command {
	deckCmd := &cobra.Command{
		Use:   "deck",
		Short: "Manage uploaded decks",
	}

	deckCmd.AddCommand(newDeckAddCommand(ctx))
	deckCmd.AddCommand(newDeckListCommand(ctx))
	deckCmd.AddCommand(newDeckShowCommand(ctx))
	deckCmd.AddCommand(newDeckGenerateCommand(ctx))

	return deckCmd
}

func newDeckAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var owner string
	var mode string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Upload a PPTX or PDF deck and queue ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourcePath, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve source path: %w", err)
			}
			file, err := os.Open(sourcePath)
			if err != nil {
				return fmt.Errorf("open source file: %w", err)
			}
			defer file.Close()

			if strings.TrimSpace(title) == "" {
				base := filepath.Base(sourcePath)
				title = strings.TrimSuffix(base, filepath.Ext(base))
			}

			var deckMode store.DeckMode
			if trimmed := strings.TrimSpace(mode); trimmed != "" {
				parsed, ok := store.ParseDeckMode(trimmed)
				if !ok {
					return fmt.Errorf("unknown mode %q (expected review or one_shot)", trimmed)
				}
				deckMode = parsed
			}

			return ctx.withService(func(cfg *config.Config, st *store.Store, svc *api.Service) error {
				deck, job, err := svc.CreateDeck(cmd.Context(), api.CreateDeckParams{
					OwnerID:    owner,
					Title:      title,
					Mode:       deckMode,
					SourceName: filepath.Base(sourcePath),
					Source:     file,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Deck %s queued for ingestion (mode %s)\n", deck.ID, deck.Mode)
				fmt.Fprintf(out, "Ingest job: %s\n", job.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Deck title (defaults to the file name)")
	cmd.Flags().StringVar(&owner, "owner", "local", "Owner identifier recorded on the deck")
	cmd.Flags().StringVar(&mode, "mode", "", "Processing mode: review or one_shot")
	return cmd
}

func newDeckListCommand(ctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				decks, err := st.ListDecks(cmd.Context(), owner)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(decks) == 0 {
					fmt.Fprintln(out, "No decks found")
					return nil
				}

				rows := make([][]string, 0, len(decks))
				for _, deck := range decks {
					rows = append(rows, []string{
						shortID(deck.ID),
						deck.Title,
						string(deck.SourceType),
						string(deck.Mode),
						deckStatusLabel(deck.Status),
						fmt.Sprintf("%d", deck.SlideCount),
						formatTimestamp(deck.CreatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Source", "Mode", "Status", "Slides", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Only list decks for this owner")
	return cmd
}

func newDeckShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <deck-id>",
		Short: "Show deck details and per-slide progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				deck, err := st.GetDeck(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if deck == nil {
					return fmt.Errorf("deck %s not found", args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Deck:    %s\n", deck.ID)
				fmt.Fprintf(out, "Title:   %s\n", deck.Title)
				fmt.Fprintf(out, "Owner:   %s\n", deck.OwnerID)
				fmt.Fprintf(out, "Mode:    %s\n", deck.Mode)
				fmt.Fprintf(out, "Status:  %s\n", deckStatusLabel(deck.Status))
				fmt.Fprintf(out, "Slides:  %d\n", deck.SlideCount)
				if deck.FinalVideoPath != "" {
					fmt.Fprintf(out, "Video:   %s (%.1fs)\n", deck.FinalVideoPath, deck.FinalVideoDuration)
				}
				for _, warning := range deck.Warnings {
					fmt.Fprintf(out, "Warning: %s\n", warning)
				}

				slides, err := st.SlidesForDeck(cmd.Context(), deck.ID)
				if err != nil {
					return err
				}
				if len(slides) == 0 {
					return nil
				}

				rows := make([][]string, 0, len(slides))
				for _, slide := range slides {
					rows = append(rows, []string{
						fmt.Sprintf("%d", slide.ID),
						fmt.Sprintf("%d", slide.Index),
						truncateMessage(slide.Title, 40),
						slideScriptState(cmd, st, slide.ID),
						slideAssetState(cmd, st, slide.ID, store.AssetAudio),
						slideAssetState(cmd, st, slide.ID, store.AssetVideo),
						yesNo(slide.NeedsImageContext),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "#", "Title", "Script", "Audio", "Video", "Image Context"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func slideScriptState(cmd *cobra.Command, st *store.Store, slideID int64) string {
	script, err := st.ScriptForSlide(cmd.Context(), slideID)
	if err != nil || script == nil {
		return "-"
	}
	return string(script.Status)
}

func slideAssetState(cmd *cobra.Command, st *store.Store, slideID int64, kind store.AssetKind) string {
	asset, err := st.AssetForSlide(cmd.Context(), slideID, kind)
	if err != nil || asset == nil {
		return "-"
	}
	return string(asset.Status)
}

func newDeckGenerateCommand(ctx *commandContext) *cobra.Command {
	var stage string
	var slideIDs []int64

	cmd := &cobra.Command{
		Use:   "generate <deck-id>",
		Short: "Queue a pipeline stage for a deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(cfg *config.Config, st *store.Store, svc *api.Service) error {
				job, err := svc.SubmitJob(cmd.Context(), api.SubmitJobParams{
					DeckID:   args[0],
					Type:     store.JobType(strings.TrimSpace(stage)),
					SlideIDs: slideIDs,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s job %s\n", stageLabel(job.Type), job.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stage, "stage", string(store.JobGenerateScripts),
		"Stage to run: ingest, generate-scripts, generate-audio, generate-video, or assemble-final")
	cmd.Flags().Int64SliceVar(&slideIDs, "slides", nil, "Limit the stage to these slide IDs")
	return cmd
}
