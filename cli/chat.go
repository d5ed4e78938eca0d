package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var exitWords = map[string]struct{}{
	"exit": {}, "quit": {}, "bye": {}, "goodbye": {},
}

var (
	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5A56E0")).
			Bold(true)
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)
	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setupContext(cmd.Context())
			if err != nil {
				return err
			}
			application, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer application.close(ctx)
			return runChat(ctx, application)
		},
	}
}

func runChat(ctx context.Context, application *app) error {
	interactive := isatty.IsTerminal(os.Stdout.Fd())
	if interactive {
		printBanner()
	}
	fmt.Println(dimStyle.Render("Connected to " + application.client.BaseURL() +
		" — type \"exit\" to leave."))
	fmt.Println()

	sessionID := core.MustNewID()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if _, leaving := exitWords[strings.ToLower(input)]; leaving {
			fmt.Println(dimStyle.Render("Bye!"))
			return nil
		}

		result, err := application.engine.HandleTurn(ctx, sessionID, input)
		if err != nil {
			logger.FromContext(ctx).Error("turn failed", "error", err)
			fmt.Println(replyStyle.Render("Sorry, something went wrong. Please try again."))
			continue
		}
		fmt.Println(promptStyle.Render("agent> ") + replyStyle.Render(result.Reply))
		fmt.Println()
	}
}

func printBanner() {
	logo := figure.NewFigure("UpGrade Agent", "small", true)
	fmt.Println(bannerStyle.Render(logo.String()))
}
