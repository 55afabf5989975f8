// This file contains the send subcommand, which delivers a test alert to
// the running worker the way the push service would.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"chokewatch/internal/push"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

const sendHelpText = `chokewatch send - Send a test alert to the worker

USAGE:
    chokewatch send [OPTIONS] TITLE

OPTIONS:
    -b, --body TEXT    Alert body
    --tag TAG          Replace earlier alerts with the same tag
    --redis            Publish on the Redis channel instead of HTTP
    --empty            Send a payload without a notification
    -h, --help         Show this help message

DESCRIPTION:
    Builds a push payload and hands it to the running worker, either by
    POSTing to its HTTP ingress or by publishing it on the configured Redis
    channel. The worker then shows or silences it according to the stored
    quiet hours.

EXAMPLES:
    chokewatch send "Bay Bridge congested" -b "Eastbound 25 min delay"
    chokewatch send --redis "Test alert"
`

// runSend handles the "chokewatch send" subcommand.
func runSend(args []string) {
	fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
	body := fs.StringP("body", "b", "", "alert body")
	tag := fs.String("tag", "", "alert tag")
	viaRedis := fs.Bool("redis", false, "publish on Redis")
	empty := fs.Bool("empty", false, "send a payload without a notification")
	parseFlags(fs, sendHelpText, args)

	var n *push.Notification
	if !*empty {
		if fs.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Error: no title given")
			fmt.Fprint(os.Stderr, sendHelpText)
			os.Exit(1)
		}
		opts := map[string]any{}
		if *body != "" {
			opts["body"] = *body
		}
		if *tag != "" {
			opts["tag"] = *tag
		}
		raw, err := json.Marshal(opts)
		if err != nil {
			fatalf("%v", err)
		}
		n = &push.Notification{Title: fs.Arg(0), Options: raw}
	}

	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	if *viaRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Push.Redis.Addr,
			Password: cfg.Push.Redis.Password,
			DB:       cfg.Push.Redis.DB,
		})
		defer rdb.Close()
		if err := push.Publish(ctx, rdb, cfg.Push.Redis.Channel, n); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("✓ Published on %s\n", cfg.Push.Redis.Channel)
		return
	}

	id, err := postPayload(ctx, "http://"+cfg.Push.HTTP.Addr+"/v1/push", n)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("✓ Delivered as event %s\n", id)
}

// postPayload sends n to a worker's HTTP ingress and returns the event id
// it was assigned.
func postPayload(ctx context.Context, url string, n *push.Notification) (string, error) {
	data, err := push.EncodePayload(n)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("is the worker running? %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(respBody, &out)

	if resp.StatusCode != http.StatusAccepted {
		if out.Error != "" {
			return "", fmt.Errorf("worker answered %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("worker answered %d", resp.StatusCode)
	}
	return out.ID, nil
}
