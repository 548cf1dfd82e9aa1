package main

import (
	"fmt"

	"hookdeploy/internal/github"
	"hookdeploy/internal/security"

	"github.com/spf13/cobra"
)

var hookOpts struct {
	repo   string
	url    string
	secret string
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Register the push webhook on GitHub",
	Long: `Create a push webhook on the repository pointing at this server.

Requires a token in GH_TOKEN or GITHUB_TOKEN with admin:repo_hook scope. Nothing
is changed if a webhook with the same URL already exists. When no secret is
given or configured, one is generated and printed once.`,
	Example: `  hookdeploy hook --repo octo/catty --url https://deploy.example.com/`,
	RunE:    runHook,
}

func init() {
	f := hookCmd.Flags()
	f.StringVar(&hookOpts.repo, "repo", "", "Repository as owner/name")
	f.StringVar(&hookOpts.url, "url", "", "Public URL of this server's webhook endpoint")
	f.StringVar(&hookOpts.secret, "secret", "", "Webhook secret (default: configured secret, or generated)")
	_ = hookCmd.MarkFlagRequired("repo")
	_ = hookCmd.MarkFlagRequired("url")
}

func runHook(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	token, err := github.TokenFromEnv()
	if err != nil {
		return err
	}

	secret := hookOpts.secret
	if secret == "" {
		secret = cfg.Webhook.Secret
	}
	generated := false
	if secret == "" {
		if secret, err = security.GenerateSecret(); err != nil {
			return err
		}
		generated = true
	} else if err := security.ValidateSecret(secret); err != nil {
		return err
	}

	ctx := cmd.Context()
	registrar := github.NewRegistrar(github.NewClient(ctx, token))
	hook, created, err := registrar.EnsureWebhook(ctx, hookOpts.repo, hookOpts.url, secret)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !created {
		fmt.Fprintf(out, "Webhook already exists on %s (id %d), nothing to do\n", hookOpts.repo, hook.GetID())
		return nil
	}

	fmt.Fprintf(out, "%s webhook %d on %s -> %s\n", colorSuccess.Sprint("Created"), hook.GetID(), hookOpts.repo, hookOpts.url)
	if generated {
		fmt.Fprintf(out, "\nGenerated webhook secret (shown only once):\n\n  %s\n\n", secret)
		fmt.Fprintf(out, "Set it as webhook.secret in %s or HOOKDEPLOY_WEBHOOK_SECRET.\n", "hookdeploy.yaml")
	}
	return nil
}
