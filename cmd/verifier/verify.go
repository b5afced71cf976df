package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/email-verifier/console/internal/inspector"
	"github.com/email-verifier/console/internal/logging"
	"github.com/email-verifier/console/internal/models"
	"github.com/email-verifier/console/internal/verifier"
	"github.com/email-verifier/console/internal/workflow"
)

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "upload a CSV file and print the verification result",
		ArgsUsage: "FILE",
		Action:    runVerify,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "column",
				Aliases: []string{"e"},
				Usage:   "email column (defaults to the first header column)",
			},
			&cli.StringSliceFlag{
				Name:  "open",
				Usage: "open the result file of a category (valid, invalid, catch-all); repeatable",
			},
			&cli.BoolFlag{
				Name:  "browser",
				Usage: "open result files in the system browser instead of printing them",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the result as JSON",
			},
		},
	}
}

func columnsCommand() *cli.Command {
	return &cli.Command{
		Name:      "columns",
		Usage:     "print the header columns of a CSV file",
		ArgsUsage: "FILE",
		Action:    runColumns,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "header split mode: naive or quoted (overrides the configuration)",
			},
		},
	}
}

func runVerify(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one FILE argument", 2)
	}

	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var categories []models.Category
	for _, name := range c.StringSlice("open") {
		cat, err := models.ParseCategory(name)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		categories = append(categories, cat)
	}

	level := cfg.Advanced.LogLevel
	client, err := verifier.NewClient(verifier.Config{
		BaseURL:    cfg.Service.BaseURL,
		UploadPath: cfg.Service.UploadPath,
		Timeout:    cfg.GetServiceTimeout(),
		Logger:     logging.New("verifier", level),
	})
	if err != nil {
		return err
	}

	out := c.App.Writer
	var opener workflow.Opener = printOpener(out)
	if c.Bool("browser") {
		opener = workflow.OpenerFunc(openBrowser)
	}

	ctrl := workflow.New(client, inspector.New(cfg.GetHeaderMode()),
		workflow.WithLogger(logging.New("workflow", level)),
		workflow.WithOpener(opener),
	)
	defer ctrl.Close()

	file, err := models.FileFromPath(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if _, err := ctrl.SelectFile(c.Context, file); err != nil {
		return cli.Exit(userMessage(err), 1)
	}
	if col := c.String("column"); col != "" {
		if err := ctrl.SelectColumn(col); err != nil {
			return cli.Exit(userMessage(err), 1)
		}
	}

	if _, err := ctrl.SubmitSelected(c.Context); err != nil {
		return cli.Exit(userMessage(err), 1)
	}

	snap := ctrl.Snapshot()
	if c.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap.Result); err != nil {
			return err
		}
	} else {
		if snap.Notice != nil {
			fmt.Fprintln(out, snap.Notice.Message)
		}
		printChart(out, snap)
	}

	for _, cat := range categories {
		if err := ctrl.RequestCategoryDownload(cat); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "%s: %s\n", cat.Label(), userMessage(err))
		}
	}
	return nil
}

func runColumns(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one FILE argument", 2)
	}

	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	mode := cfg.GetHeaderMode()
	if m := c.String("mode"); m != "" {
		if mode, err = inspector.ParseMode(m); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}

	file, err := models.FileFromPath(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	columns, err := inspector.New(mode).Inspect(c.Context, file)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	for _, col := range columns.Columns {
		marker := " "
		if col == columns.Selected {
			marker = "*"
		}
		fmt.Fprintf(c.App.Writer, "%s %q\n", marker, col)
	}
	return nil
}

func printChart(w io.Writer, snap models.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, bar := range snap.Chart() {
		locator := "-"
		if l := snap.Result.Locator(bar.Category); l != nil {
			locator = *l
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", bar.Label, bar.Count, locator)
	}
	tw.Flush()
}

// userMessage returns the notice text of a workflow error.
func userMessage(err error) string {
	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		return wfErr.Message
	}
	return err.Error()
}

func printOpener(w io.Writer) workflow.Opener {
	return workflow.OpenerFunc(func(locator string) error {
		_, err := fmt.Fprintf(w, "open: %s\n", locator)
		return err
	})
}

func openBrowser(locator string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", locator)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", locator)
	default:
		cmd = exec.Command("xdg-open", locator)
	}
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	return cmd.Start()
}
