// Command rendezvous is the rolling-secret meeting-point collaborator
// described informatively in spec.md §6: it walks a time-rolling
// secret, reading each slot until it finds a free one, then publishes
// the set of nicknames it has collected so far.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xipology-go/internal/xipology"
)

func printHelp(program string) {
	fmt.Fprintf(os.Stderr, "%s <dns server ip> <nick>\n", program)
}

func main() {
	logLevel := "info"
	args := os.Args[1:]

	// A minimal flag scan: --log-level is the only flag, positional
	// args are server and nick.
	var positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--log-level" && i+1 < len(args) {
			logLevel = args[i+1]
			i++
			continue
		}
		positional = append(positional, args[i])
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	setLogLevel(logLevel)

	if len(positional) < 2 {
		printHelp(os.Args[0])
		os.Exit(1)
	}

	server := positional[0] + ":53"
	nick := positional[1]

	const baseSecret = "rendezvous"
	xipo, err := xipology.FromSecret(server, []byte(baseSecret))
	if err != nil {
		log.Fatal().Err(err).Msg("xipology.FromSecret")
	}

	gen := newSecretGen(baseSecret)
	collected := []string{nick}

	ctx := context.Background()
	for {
		secret := gen.secret()
		log.Info().Str("secret", string(secret)).Msg("Using secret")

		if err := xipo.ChangeSecret(secret); err != nil {
			log.Error().Err(err).Msg("change_secret")
			continue
		}

		data, err := xipo.ReadBytes(ctx)
		switch {
		case err == nil:
			found := strings.Split(string(data), ",")
			collected = mergeUnique(collected, found)
			log.Info().Strs("nicks", found).Msg("Found nicks")

		case isKind(err, xipology.KindFree):
			payload := strings.Join(collected, ",")
			log.Info().Str("payload", payload).Msg("Rendezvous point was free, publishing")
			if _, err := xipo.WriteBytes(ctx, []byte(payload)); err != nil {
				log.Error().Err(err).Msg("write_bytes")
			}
			sleepJitter()

		case isKind(err, xipology.KindConsumed):
			log.Debug().Msg("Rendezvous point already consumed")

		case isKind(err, xipology.KindParity):
			log.Warn().Msg("Parity error at rendezvous point")

		default:
			log.Error().Err(err).Msg("Read error")
		}
	}
}

func isKind(err error, kind xipology.ErrorKind) bool {
	re, ok := err.(*xipology.ReadError)
	return ok && re.Kind == kind
}

// mergeUnique appends any nick from found that is not already present
// in collected, preserving order.
func mergeUnique(collected, found []string) []string {
	seen := make(map[string]bool, len(collected))
	for _, n := range collected {
		seen[n] = true
	}
	for _, n := range found {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		collected = append(collected, n)
	}
	return collected
}

// sleepJitter sleeps a uniform-random 55-65 seconds, per spec.md §6.
func sleepJitter() {
	d := 55*time.Second + time.Duration(rand.Int63n(int64(10*time.Second)))
	time.Sleep(d)
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
