package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luhaoyun888/go-imap-part"
	"github.com/luhaoyun888/go-imap-part/imappart"
)

func parseSeqNum(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, errors.Errorf("invalid message sequence number %q", s)
	}
	return uint32(n), nil
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <seq>",
		Short: "Print the MIME part tree of a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seqNum, err := parseSeqNum(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			msg, err := s.message(ctx, seqNum)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if envelope := msg.Envelope(); envelope != nil {
				fmt.Fprintf(w, "Subject: %v\n", envelope.Subject)
			}
			switch content := msg.Content().(type) {
			case *imappart.Multipart:
				printMultipart(w, content, 0)
			default:
				part, err := msg.Part(imap.SectionPath{1})
				if err != nil {
					return err
				}
				printPart(w, part, 0)
			}
			return nil
		},
	}
}

func printMultipart(w io.Writer, mp *imappart.Multipart, depth int) {
	for i := 0; i < mp.Len(); i++ {
		part, err := mp.Part(i)
		if err != nil {
			continue
		}
		printPart(w, part, depth)
	}
}

func printPart(w io.Writer, part *imappart.Part, depth int) {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(part.SectionPath().String())
	sb.WriteString(" ")
	sb.WriteString(part.ContentType())
	if size := part.Size(); size >= 0 {
		fmt.Fprintf(&sb, " size=%v", size)
	}
	if disp := part.Disposition(); disp != "" {
		fmt.Fprintf(&sb, " disposition=%v", disp)
	}
	if filename, err := part.FileName(); filename != "" {
		fmt.Fprintf(&sb, " filename=%q", filename)
	} else if err != nil {
		fmt.Fprintf(&sb, " filename=<%v>", err)
	}
	fmt.Fprintln(w, sb.String())

	switch content := part.Content().(type) {
	case *imappart.Multipart:
		printMultipart(w, content, depth+1)
	case *imappart.NestedMessage:
		fmt.Fprintf(w, "%v  Subject: %v\n", strings.Repeat("  ", depth), content.Subject())
		if mp, ok := content.Content().(*imappart.Multipart); ok {
			printMultipart(w, mp, depth+1)
		}
	}
}

func newCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <seq> [path]",
		Short: "Write the content of a part to stdout",
		Long: "Write the content of a part to stdout. The path is a dotted section path such as 1.2; " +
			"without a path the whole message body is written.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seqNum, err := parseSeqNum(args[0])
			if err != nil {
				return err
			}
			var path imap.SectionPath
			if len(args) > 1 {
				if path, err = imap.ParseSectionPath(args[1]); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			decode, _ := flags.GetBool("decode")
			headers, _ := flags.GetBool("headers")
			raw, _ := flags.GetBool("mime")

			ctx := cmd.Context()
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			msg, err := s.message(ctx, seqNum)
			if err != nil {
				return err
			}
			part, err := msg.Part(path)
			if err != nil {
				return err
			}

			var r io.Reader
			switch {
			case headers:
				r, err = part.HeaderStream(ctx)
			case raw:
				r, err = part.MIMEStream(ctx)
			case decode:
				var entity *message.Entity
				entity, err = part.Entity(ctx)
				if err != nil && (message.IsUnknownEncoding(err) || message.IsUnknownCharset(err)) {
					s.logger.Warn("writing undecoded content", zap.Error(err))
					err = nil
				}
				if entity != nil {
					r = entity.Body
				}
			default:
				r, err = part.ContentStream(ctx)
			}
			if err != nil {
				return err
			}
			_, err = io.Copy(cmd.OutOrStdout(), r)
			return err
		},
	}
	cmd.Flags().Bool("decode", false, "Decode the Content-Transfer-Encoding")
	cmd.Flags().Bool("headers", false, "Write the MIME headers instead of the content")
	cmd.Flags().Bool("mime", false, "Write the MIME headers followed by the raw content")
	cmd.MarkFlagsMutuallyExclusive("decode", "headers", "mime")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <seq> <path> <mbox-file>",
		Short: "Append the MIME form of a part to an mbox file",
		Long: "Append the MIME form of a part to an mbox file. Use an empty path (\"\") " +
			"to export the whole message.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			seqNum, err := parseSeqNum(args[0])
			if err != nil {
				return err
			}
			path, err := imap.ParseSectionPath(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			msg, err := s.message(ctx, seqNum)
			if err != nil {
				return err
			}
			part, err := msg.Part(path)
			if err != nil {
				return err
			}
			r, err := part.MIMEStream(ctx)
			if err != nil {
				return err
			}

			f, err := os.OpenFile(args[2], os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				return errors.Wrap(err, "open mbox file")
			}
			defer f.Close()

			from, date := mboxSeparator(msg.Envelope())
			mw := mbox.NewWriter(f)
			w, err := mw.CreateMessage(from, date)
			if err != nil {
				return errors.Wrap(err, "create mbox message")
			}
			n, err := io.Copy(w, r)
			if err != nil {
				return err
			}
			if err := mw.Close(); err != nil {
				return errors.Wrap(err, "close mbox writer")
			}

			s.logger.Info("part exported",
				zap.Uint32("seq", seqNum),
				zap.Stringer("path", path),
				zap.String("file", args[2]),
				zap.Int64("bytes", n))
			return f.Close()
		},
	}
}

// mboxSeparator 返回 mbox "From " 分隔行使用的发件人和日期。
func mboxSeparator(envelope *imap.Envelope) (string, time.Time) {
	from, date := "MAILER-DAEMON", time.Now()
	if envelope == nil {
		return from, date
	}
	for _, addr := range envelope.From {
		if a := addr.Addr(); a != "" {
			from = a
			break
		}
	}
	if !envelope.Date.IsZero() {
		date = envelope.Date
	}
	return from, date
}
