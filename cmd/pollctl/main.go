// pollctl sends one task request to a poller broker and prints the reply.
//
// It keeps the short option surface of the classic C client front-end, but
// every invocation flows through the one shared retry protocol instead of a
// per-tool copy of the loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pollerkit/pollctl/internal/client"
	"github.com/pollerkit/pollctl/internal/logging"
	"github.com/pollerkit/pollctl/internal/task"
	"github.com/pollerkit/pollctl/internal/transport"
)

// sysexits codes, the contract the original front-ends exposed to callers.
const (
	exOK          = 0
	exUsage       = 64
	exUnavailable = 69
	exProtocol    = 76
)

// exhaustedDoc is printed when no reply arrived within the retry budget; it
// mirrors the worker error document so downstream JSON consumers see one
// shape either way.
const exhaustedDoc = `{ "success": 1, "msg": "Did not receive response, aborting..." }`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logging.ConfigureRuntime()

	fs := flag.NewFlagSet("pollctl", flag.ContinueOnError)
	fs.Usage = func() { usage(fs) }

	var (
		method       = fs.String("m", "", "method to be processed during the request")
		hostname     = fs.String("V", "", "vSphere host to send the request to")
		name         = fs.String("n", "", "name of the object, e.g. ESXi hostname, datastore URL")
		properties   = fs.String("p", "", "comma-separated property names")
		key          = fs.String("k", "", "additional key for data filtering")
		username     = fs.String("U", "", "username for authentication in the guest system")
		password     = fs.String("P", "", "password for authentication in the guest system")
		counterID    = fs.String("c", "", "performance counter ID to retrieve")
		instance     = fs.String("i", "", "performance metric instance name")
		perfInterval = fs.String("T", "", "historical performance interval key")
		maxSample    = fs.String("s", "", "max number of performance samples to retrieve")
		helper       = fs.String("H", task.HelperCLI, "helper module for processing the result")
		endpoint     = fs.String("e", client.DefaultEndpoint, "broker endpoint to connect to")
		timeoutMS    = fs.Int("t", int(client.DefaultTimeout.Milliseconds()), "per-attempt timeout in milliseconds")
		retries      = fs.Int("r", client.DefaultRetries, "number of times to retry if a request times out")
	)
	if err := fs.Parse(args); err != nil {
		return exUsage
	}
	if strings.TrimSpace(*method) == "" || strings.TrimSpace(*hostname) == "" {
		usage(fs)
		return exUsage
	}

	req := task.Request{
		Method:       *method,
		Hostname:     *hostname,
		Name:         *name,
		Properties:   splitProperties(*properties),
		Key:          *key,
		Username:     *username,
		Password:     *password,
		CounterID:    *counterID,
		Instance:     *instance,
		PerfInterval: *perfInterval,
		MaxSample:    *maxSample,
		Helper:       *helper,
	}

	tctx := transport.NewContext(transport.DefaultOptions())
	defer tctx.Close()

	requester, err := client.NewRequester(tctx, client.Config{
		Endpoint: *endpoint,
		Timeout:  time.Duration(*timeoutMS) * time.Millisecond,
		Retries:  *retries,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pollctl: %v\n", err)
		return exUsage
	}

	err = client.Run(context.Background(), requester, req.Marshal, func(reply []byte) error {
		_, werr := os.Stdout.Write(append(reply, '\n'))
		return werr
	})
	switch {
	case err == nil:
		return exOK
	case errors.Is(err, client.ErrExhausted):
		fmt.Println(exhaustedDoc)
		return exUnavailable
	case errors.Is(err, task.ErrMethodRequired), errors.Is(err, task.ErrHostnameRequired):
		usage(fs)
		return exUsage
	default:
		fmt.Fprintf(os.Stderr, "pollctl: %v\n", err)
		return exProtocol
	}
}

func splitProperties(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage:\n    pollctl [options] -m <method> -V <host>\n\nOptions:\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
    pollctl -m vm.discover -V vc01.example.org
    pollctl -m vm.get -V vc01.example.org -n vm01.example.org -p summary.overallStatus
    pollctl -m vm.disk.get -V vc01.example.org -n vm01.example.org -k /var
`)
}
