// Command xipo is the one-shot reader/writer collaborator described
// informatively in spec.md §6: it writes a text argument (or stdin,
// when the text is "-") through a Xipology channel, or reads one
// message back out.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xipology-go/internal/xipology"
)

func printHelp(program string) {
	fmt.Fprintf(os.Stderr, "%s <dns server ip> <secret> <read | write <text>>\n", program)
}

func main() {
	logLevel := flag.String("log-level", "info", "Log level: debug/info/warn/error")
	decoyBits := flag.Int("decoy-bits", xipology.DefaultDecoyBits, "Decoy slots per frame")

	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	setLogLevel(*logLevel)

	args := flag.Args()
	program := os.Args[0]

	if len(args) < 3 {
		printHelp(program)
		os.Exit(1)
	}

	server := args[0] + ":53"
	secret := []byte(args[1])
	op := args[2]

	xipo, err := xipology.FromSecret(server, secret, xipology.WithDecoyBits(*decoyBits))
	if err != nil {
		log.Fatal().Err(err).Msg("xipology.FromSecret")
	}

	ctx := context.Background()

	switch op {
	case "read":
		fmt.Fprint(os.Stderr, "Reading...")
		data, err := xipo.ReadBytes(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr)
			log.Fatal().Err(err).Msg("xipo.ReadBytes")
		}
		fmt.Fprintln(os.Stderr, "Done!")
		fmt.Fprintln(os.Stderr, "Received:")
		fmt.Println(string(data))

	case "write":
		if len(args) < 4 {
			printHelp(program)
			os.Exit(1)
		}
		text := args[3]
		if text == "-" {
			buf, err := io.ReadAll(os.Stdin)
			if err != nil {
				log.Fatal().Err(err).Msg("read stdin")
			}
			text = string(buf)
		}

		fmt.Fprint(os.Stderr, "Writing...")
		if _, err := xipo.WriteBytes(ctx, []byte(text)); err != nil {
			fmt.Fprintln(os.Stderr)
			log.Fatal().Err(err).Msg("xipo.WriteBytes")
		}
		fmt.Fprintln(os.Stderr, "Done!")

	default:
		printHelp(program)
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		log.Fatal().Str("level", level).Msg("Invalid log level")
	}
}
