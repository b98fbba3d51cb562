package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/ostrom-integration/cmd"
)

func main() {
	app := &cli.App{
		Name:   "ostrom-integration",
		Usage:  "publishes ostrom dynamic tariff spot prices as home assistant sensors",
		Action: cmd.OstromCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "client-id",
				EnvVars: []string{"OSTROM_CLIENT_ID"},
			},
			&cli.StringFlag{
				Name:    "client-secret",
				EnvVars: []string{"OSTROM_CLIENT_SECRET"},
			},
			&cli.StringFlag{
				Name:    "zip-code",
				EnvVars: []string{"OSTROM_ZIP_CODE"},
			},
			&cli.StringFlag{
				Name:    "auth-url",
				EnvVars: []string{"OSTROM_AUTH_URL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "api-url",
				EnvVars: []string{"OSTROM_API_URL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "listen-addr",
				EnvVars: []string{"HTTP_LISTEN_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "admin-password-hash",
				EnvVars: []string{"ADMIN_PASSWORD_HASH"},
				Value:   "",
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				EnvVars: []string{"POLL_INTERVAL"},
				Value:   30 * time.Minute,
			},
			&cli.BoolFlag{
				Name:  "from-env",
				Usage: "ignore flags and read all configuration from environment variables",
				Value: false,
			},
			&cli.BoolFlag{
				Name:  "validate-only",
				Usage: "validate credentials with a single test fetch and exit",
				Value: false,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
