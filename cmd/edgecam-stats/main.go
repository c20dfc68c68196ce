// edgecam-stats prints the statistics feed of a running edgecam viewer.
//
//	edgecam-stats                 follow /ws/stats
//	edgecam-stats -once           print /api/stats once
//	edgecam-stats -start | -stop  control the pipeline
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-edgecam/internal/httpc"
	"github.com/teslashibe/go-edgecam/pkg/stats"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8090", "viewer address")
	once := flag.Bool("once", false, "print the current report and exit")
	start := flag.Bool("start", false, "start the pipeline")
	stop := flag.Bool("stop", false, "stop the pipeline")
	asJSON := flag.Bool("json", false, "print raw JSON reports")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	base := "http://" + *addr
	client := httpc.NewClient(httpc.DefaultTimeout)

	var err error
	switch {
	case *start:
		err = control(ctx, client, base+"/api/pipeline/start")
	case *stop:
		err = control(ctx, client, base+"/api/pipeline/stop")
	case *once:
		var r stats.Report
		if err = httpc.GetJSON(ctx, client, base+"/api/stats", &r); err == nil {
			printReport(r, *asJSON)
		}
	default:
		err = follow(ctx, *addr, *asJSON)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "edgecam-stats: %v\n", err)
		os.Exit(1)
	}
}

func control(ctx context.Context, client *http.Client, endpoint string) error {
	var resp struct {
		State string `json:"state"`
	}
	if err := httpc.PostJSON(ctx, client, endpoint, &resp); err != nil {
		return err
	}
	fmt.Println(resp.State)
	return nil
}

// follow prints every report pushed on /ws/stats, reconnecting after errors.
func follow(ctx context.Context, addr string, asJSON bool) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/stats"}
	for {
		err := stream(ctx, u.String(), asJSON)
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(os.Stderr, "disconnected: %v; retrying\n", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func stream(ctx context.Context, endpoint string, asJSON bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var r stats.Report
		if err := json.Unmarshal(data, &r); err != nil {
			fmt.Fprintf(os.Stderr, "bad report: %v\n", err)
			continue
		}
		printReport(r, asJSON)
	}
}

func printReport(r stats.Report, asJSON bool) {
	if asJSON {
		data, _ := json.Marshal(r)
		fmt.Println(string(data))
		return
	}
	state := "stopped"
	if r.Running {
		state = "running"
	}
	line := fmt.Sprintf("%s | %s | processed %d dropped %d skipped %d",
		r.String(), state, r.FramesProcessed, r.FramesDropped, r.FramesSkipped)
	if r.LastError != "" {
		line += " | error: " + r.LastError
	}
	fmt.Println(line)
}
