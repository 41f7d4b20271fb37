package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/insurance-doc-classifier/internal/adapters/mcp"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/ports"
)

type executorFactory func(ctx context.Context, logOut io.Writer) (ports.BatchExecutor, *slog.Logger, func(), error)

func newRootCommand(factory executorFactory, logOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "docclass",
		Short:         "Classify insurance submission documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newClassifyCommand(factory, logOut),
		newReferencesCommand(factory, logOut),
		newMCPCommand(factory, logOut),
	)
	return root
}

func newClassifyCommand(factory executorFactory, logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>...",
		Short: "Upload local files and classify them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]domain.EncodedFile, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				files = append(files, domain.EncodedFile{
					Filename: filepath.Base(path),
					Content:  base64.StdEncoding.EncodeToString(data),
				})
			}
			return run(cmd, factory, logOut, domain.BatchRequest{
				Action: domain.ActionClassifyUploads,
				Files:  files,
			})
		},
	}
}

func newReferencesCommand(factory executorFactory, logOut io.Writer) *cobra.Command {
	refs := &cobra.Command{
		Use:   "references",
		Short: "Work with documents already in the uploads bucket",
	}

	var (
		prefix string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, factory, logOut, domain.BatchRequest{
				Action: domain.ActionListReferences,
				Prefix: prefix,
				Limit:  limit,
			})
		},
	}
	list.Flags().StringVar(&prefix, "prefix", "", "key prefix, defaults to the uploads prefix")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of objects")

	classify := &cobra.Command{
		Use:   "classify <key>...",
		Short: "Classify stored documents by object key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			references := make([]domain.Reference, 0, len(args))
			for _, key := range args {
				references = append(references, domain.Reference{Key: key})
			}
			return run(cmd, factory, logOut, domain.BatchRequest{
				Action:     domain.ActionClassifyReferences,
				References: references,
			})
		},
	}

	refs.AddCommand(list, classify)
	return refs
}

func newMCPCommand(factory executorFactory, logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve classification tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			executor, logger, closeFn, err := factory(cmd.Context(), logOut)
			if err != nil {
				return err
			}
			defer closeFn()
			logger.Info("mcp_stdio_started", "version", version)
			return mcpadapter.NewServer(executor, version, logger).ServeStdio()
		},
	}
}

func run(cmd *cobra.Command, factory executorFactory, logOut io.Writer, req domain.BatchRequest) error {
	executor, _, closeFn, err := factory(cmd.Context(), logOut)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := executor.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
