// Package tryout implements np-tryout, a command-line tool that drives a
// passwordless server through the two-step exchange by hand.
package tryout

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	goNoPass "github.com/MrEthical07/goNoPass"
	"github.com/MrEthical07/goNoPass/challenge"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":     "base_url",
	"client-id":    "client_id",
	"secret":       "secret",
	"dev":          "dev",
	"verbose":      "verbose",
	"silent":       "silent",
	"timeout":      "timeout",
	"redis-addr":   "redis.addr",
	"redis-prefix": "redis.prefix",
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "np-tryout",
		Usage:   "Run a passwordless login against a server by hand",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			authCommand(),
			validateCommand(),
			loginCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
		},
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "server root without trailing slash, e.g. http://localhost:27001",
		},
		&cli.StringFlag{
			Name:  "client-id",
			Usage: "client identifier registered with the server",
		},
		&cli.StringFlag{
			Name:  "secret",
			Usage: "shared secret used to sign requests",
		},
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "use the /api path prefix of development servers",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "log request diagnostics to stderr",
		},
		&cli.BoolFlag{
			Name:  "silent",
			Usage: "disable all diagnostics",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "round-trip timeout",
		},
		&cli.StringFlag{
			Name:  "redis-addr",
			Usage: "Redis address; enables the token/email pairing check",
		},
		&cli.StringFlag{
			Name:  "redis-prefix",
			Usage: "key prefix for challenge records",
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Start a challenge for an email address",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			return withClient(c, func(client *goNoPass.Client) error {
				resp, err := client.SendAuth(c.Context, c.String("email"))
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, resp)
			})
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Complete a challenge with the emailed code",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Required: true},
			&cli.StringFlag{Name: "code", Required: true},
		},
		Action: func(c *cli.Context) error {
			return withClient(c, func(client *goNoPass.Client) error {
				resp, err := client.SendValidation(c.Context, c.String("email"), c.String("token"), c.String("code"))
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, resp)
			})
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Start a challenge, prompt for the code and validate it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			return withClient(c, func(client *goNoPass.Client) error {
				email := c.String("email")
				auth, err := client.SendAuth(c.Context, email)
				if err != nil {
					return err
				}
				if err := printJSON(c.App.Writer, auth); err != nil {
					return err
				}

				code, err := promptCode(c.App.Reader, c.App.Writer)
				if err != nil {
					return err
				}

				resp, err := client.SendValidation(c.Context, email, auth.Token, code)
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, resp)
			})
		},
	}
}

// setFlags collects the global flags given on the command line.
func setFlags(c *cli.Context) map[string]any {
	out := map[string]any{}
	for name, key := range flagKeys {
		if !c.IsSet(name) {
			continue
		}
		var v any
		switch name {
		case "dev", "verbose", "silent":
			v = c.Bool(name)
		case "timeout":
			v = c.Duration(name).String()
		default:
			v = c.String(name)
		}
		if parent, child, nested := strings.Cut(key, "."); nested {
			m, _ := out[parent].(map[string]any)
			if m == nil {
				m = map[string]any{}
				out[parent] = m
			}
			m[child] = v
			continue
		}
		out[key] = v
	}
	return out
}

func withClient(c *cli.Context, fn func(*goNoPass.Client) error) error {
	settings, err := loadSettings(c.String("config"), setFlags(c))
	if err != nil {
		return err
	}

	builder := goNoPass.New().
		WithConfig(settings.clientConfig()).
		WithLogger(zerolog.New(zerolog.ConsoleWriter{Out: c.App.ErrWriter, NoColor: true}).With().Timestamp().Logger())

	if settings.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: settings.Redis.Addr})
		defer rdb.Close()
		builder = builder.WithChallengeTracker(challenge.NewRedisStore(rdb, settings.Redis.Prefix, settings.Redis.TTL))
	}

	client, err := builder.Build()
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(client)
}

func promptCode(r io.Reader, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, "What is the verification code? "); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", errors.New("no verification code entered")
	}
	return code, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
