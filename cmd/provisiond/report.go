package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"provision-svc/app/clients"
	"provision-svc/app/domains"
	"provision-svc/app/logging"
	"provision-svc/app/services"
	"provision-svc/app/utils"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Send a status message as a machine would",
	Long: `Send one status message to a provisiond server.

Files are attached with --file <local>[:<reported path>]; the reported path
decides the script result and stream (.out, .err, .yaml or combined output).
Messages that cannot be delivered are spooled and resent by "report flush".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := reportOptionsFromFlags(cmd)
		if opts.token == "" {
			return fmt.Errorf("--token or PROVISION_TOKEN must be set")
		}

		msg := &domains.StatusMessage{
			EventType:   opts.eventType,
			Origin:      opts.origin,
			Name:        opts.name,
			Description: opts.description,
			Result:      opts.result,
		}
		ts := float64(time.Now().UnixNano()) / float64(time.Second)
		msg.Timestamp = &ts

		for _, arg := range opts.files {
			file, err := readAttachment(arg, opts.exitStatus, cmd.Flags().Changed("exit-status"))
			if err != nil {
				return err
			}
			msg.Files = append(msg.Files, file)
		}

		svc, closeFn, err := newReportService(opts)
		if err != nil {
			return err
		}
		defer closeFn()

		spooled, err := svc.Report(cmd.Context(), opts.token, msg)
		if err != nil {
			return err
		}
		if spooled {
			fmt.Fprintln(cmd.OutOrStdout(), "server unreachable, message spooled")
		}
		return nil
	},
}

var reportFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Resend spooled status messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := reportOptionsFromFlags(cmd)
		svc, closeFn, err := newReportService(opts)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := svc.Flush(cmd.Context(), 1000)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d, abandoned %d\n", res.Sent, res.Failed, res.Abandoned)
		return nil
	},
}

func init() {
	reportCmd.PersistentFlags().String("url", envOr("PROVISION_URL", "http://localhost:5240"), "provisiond base URL")
	reportCmd.PersistentFlags().String("spool", envOr("PROVISION_SPOOL", ""), "SQLite outbox for undelivered messages")
	reportCmd.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout")

	reportCmd.Flags().String("token", os.Getenv("PROVISION_TOKEN"), "machine token")
	reportCmd.Flags().String("event-type", domains.EventTypeProgress, "event type (start, progress, finish)")
	reportCmd.Flags().String("origin", "curtin", "origin of the event")
	reportCmd.Flags().String("name", "cmd-install", "name of the step")
	reportCmd.Flags().String("description", "", "description of the event")
	reportCmd.Flags().String("result", "", "result of a finish event (SUCCESS, FAILURE, FAIL)")
	reportCmd.Flags().StringArray("file", nil, "attach <local>[:<reported path>]")
	reportCmd.Flags().Int("exit-status", 0, "exit status reported with every attached file")

	reportCmd.AddCommand(reportFlushCmd)
}

type reportOptions struct {
	url         string
	spool       string
	timeout     time.Duration
	token       string
	eventType   string
	origin      string
	name        string
	description string
	result      string
	files       []string
	exitStatus  int
}

func reportOptionsFromFlags(cmd *cobra.Command) reportOptions {
	var opts reportOptions
	opts.url, _ = cmd.Flags().GetString("url")
	opts.spool, _ = cmd.Flags().GetString("spool")
	opts.timeout, _ = cmd.Flags().GetDuration("timeout")
	opts.token, _ = cmd.Flags().GetString("token")
	opts.eventType, _ = cmd.Flags().GetString("event-type")
	opts.origin, _ = cmd.Flags().GetString("origin")
	opts.name, _ = cmd.Flags().GetString("name")
	opts.description, _ = cmd.Flags().GetString("description")
	opts.result, _ = cmd.Flags().GetString("result")
	opts.files, _ = cmd.Flags().GetStringArray("file")
	opts.exitStatus, _ = cmd.Flags().GetInt("exit-status")
	return opts
}

func newReportService(opts reportOptions) (*services.ReportService, func(), error) {
	client := clients.NewStatusClient(strings.TrimRight(opts.url, "/"), opts.timeout)
	logger := logging.WithComponent("report")

	if opts.spool == "" {
		return services.NewReportService(client, nil, utils.DefaultRetryPolicy(), logger), func() {}, nil
	}
	spool, err := clients.NewSpool(opts.spool)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open spool: %w", err)
	}
	closeFn := func() {
		if err := spool.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close spool")
		}
	}
	return services.NewReportService(client, spool, utils.DefaultRetryPolicy(), logger), closeFn, nil
}

// readAttachment loads a local file as an uncompressed base64 attachment
func readAttachment(arg string, exitStatus int, withExitStatus bool) (domains.FileAttachment, error) {
	local, reported, found := strings.Cut(arg, ":")
	if !found {
		reported = local
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return domains.FileAttachment{}, fmt.Errorf("failed to read %s: %w", local, err)
	}

	file := domains.FileAttachment{
		Path:     reported,
		Encoding: utils.EncodingBase64,
		Content:  utils.EncodePayload(data),
	}
	if withExitStatus {
		status := exitStatus
		file.Result = &status
	}
	return file, nil
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
