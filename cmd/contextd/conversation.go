package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/contextd/internal/namespace"
	"github.com/szaher/contextd/internal/store"
)

func newAppendCmd() *cobra.Command {
	var (
		k           keyFlags
		speaker     string
		attachments []string
	)

	cmd := &cobra.Command{
		Use:   "append [content...]",
		Short: "Append an entry to a conversation's live log",
		Long: `Appends one "[timestamp] speaker: content" line to the live log.
Content is taken from the arguments, or from stdin when none are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if !a.cfg.ChannelAllowed(k.conversation) {
				return fmt.Errorf("conversation %d is not in allowed_channel_ids", k.conversation)
			}

			content := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				content = strings.TrimRight(string(data), "\n")
			}

			ctx := cmd.Context()
			key := k.key()
			if _, err := a.logs.EnsureSystemPrompt(ctx, key); err != nil {
				return err
			}
			return a.logs.AppendLive(ctx, key, store.NewEntry(time.Now(), speaker, content, attachments...))
		},
	}

	k.require(cmd)
	cmd.Flags().StringVar(&speaker, "speaker", "user", "Speaker name")
	cmd.Flags().StringSliceVar(&attachments, "attach", nil, "Attachment file names")

	return cmd
}

func newReadCmd() *cobra.Command {
	var (
		k        keyFlags
		resource string
		paths    bool
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print a conversation's context",
		Long: `Prints one resource (current, archive, system) or, by default, the
system prompt, archive and live log together.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			key := k.key()
			out := cmd.OutOrStdout()

			if paths {
				files, err := store.ContextFiles(a.resolver, key)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(out, f)
				}
				return nil
			}

			switch namespace.Resource(resource) {
			case namespace.ResourceCurrent:
				live, err := a.logs.ReadLive(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprint(out, live)
			case namespace.ResourceArchive:
				archive, err := a.archive.Read(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprint(out, archive)
			case namespace.ResourceSystem:
				prompt, err := a.logs.SystemPrompt(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, prompt)
			case "":
				b, err := store.LoadBundle(ctx, a.logs, a.archive, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "== system ==\n%s\n== archive ==\n%s\n== current ==\n%s", b.SystemPrompt, b.Archive, b.Live)
			default:
				return fmt.Errorf("%w: %q", namespace.ErrUnknownResource, resource)
			}
			return nil
		},
	}

	k.require(cmd)
	cmd.Flags().StringVar(&resource, "resource", "", "Resource to print (current, archive, system)")
	cmd.Flags().BoolVar(&paths, "paths", false, "Print the archive and live log file paths instead")

	return cmd
}

func newClearCmd() *cobra.Command {
	var (
		k       keyFlags
		archive bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty a conversation's live log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			key := k.key()
			if err := a.logs.ClearLive(ctx, key); err != nil {
				return err
			}
			if archive {
				if err := a.archive.Clear(ctx, key); err != nil {
					return err
				}
			}
			a.logger.Info("conversation cleared", "tenant", key.TenantID, "conversation", key.ConversationID, "archive", archive)
			return nil
		},
	}

	k.require(cmd)
	cmd.Flags().BoolVar(&archive, "archive", false, "Also empty the archive")

	return cmd
}

func newPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Get or set a conversation's system prompt",
	}

	var getKey keyFlags
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the system prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			prompt, err := a.logs.SystemPrompt(cmd.Context(), getKey.key())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return nil
		},
	}
	getKey.require(get)

	var setKey keyFlags
	set := &cobra.Command{
		Use:   "set <text...>",
		Short: "Replace the system prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			return a.logs.SetSystemPrompt(cmd.Context(), setKey.key(), strings.Join(args, " "))
		},
	}
	setKey.require(set)

	cmd.AddCommand(get, set)
	return cmd
}

func newConversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List known conversations with their live and archive sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			keys, err := a.resolver.Discover()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}

			ctx := cmd.Context()
			fmt.Fprintf(out, "%-20s %-20s %10s %10s\n", "TENANT", "CONVERSATION", "LIVE", "ARCHIVE")
			fmt.Fprintln(out, strings.Repeat("-", 63))
			for _, key := range keys {
				live, err := a.logs.ReadLive(ctx, key)
				if err != nil {
					return err
				}
				archive, err := a.archive.Read(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-20d %-20d %10d %10d\n", key.TenantID, key.ConversationID, len(live), len(archive))
			}
			return nil
		},
	}
}
