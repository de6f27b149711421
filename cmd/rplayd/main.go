package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/envelope/gobcodec"
	"github.com/snowp/rplay/internal/rplayclient"
	"github.com/snowp/rplay/internal/server"
)

func codecByName(name string) (envelope.Codec, error) {
	switch name {
	case "", "json":
		return envelope.JSONCodec{}, nil
	case "gob":
		return gobcodec.Codec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q, want json or gob", name)
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "rplayd"
	app.Usage = "length-prefixed request/response RPC server and client"
	app.Commands = []cli.Command{
		serverCommand(),
		clientCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func serverCommand() cli.Command {
	return cli.Command{
		Name:  "server",
		Usage: "listen and serve",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "listen, l", Value: ":7878", Usage: "listen address, eg: \":7878\""},
			cli.IntFlag{Name: "workers, w", Value: 4, Usage: "number of dispatcher workers"},
			cli.StringFlag{Name: "codec", Value: "json", Usage: "wire codec: json or gob"},
			cli.IntFlag{Name: "max-frame-size", Value: 0, Usage: "max accepted frame size in bytes, 0 for default"},
		},
		Action: func(c *cli.Context) error {
			codec, err := codecByName(c.String("codec"))
			if err != nil {
				return cli.NewExitError(err.Error(), 2)
			}

			srv, err := server.New(server.Config{
				Addr:         c.String("listen"),
				NumWorkers:   c.Int("workers"),
				Codec:        codec,
				MaxFrameSize: uint32(c.Int("max-frame-size")),
			})
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			if err := srv.Run(); err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			return nil
		},
	}
}

func clientCommand() cli.Command {
	return cli.Command{
		Name:      "client",
		Usage:     "send one request and print the response",
		ArgsUsage: "<server-addr> <method> <json-body>",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "codec", Value: "json", Usage: "wire codec: json or gob"},
			cli.Uint64Flag{Name: "session", Value: 0, Usage: "session id, 0 requests a new session"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return cli.NewExitError("usage: rplayd client <server-addr> <method> <json-body>", 2)
			}
			addr, method, body := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

			codec, err := codecByName(c.String("codec"))
			if err != nil {
				return cli.NewExitError(err.Error(), 2)
			}

			cl := rplayclient.New(addr)
			cl.Codec = codec

			resp, err := cl.Call(&envelope.Envelope{
				Method:  method,
				Session: c.Uint64("session"),
				Body:    []byte(body),
			})
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}

			fmt.Printf("session=%d method=%q body=%s\n", resp.Session, resp.Method, resp.Body)
			return nil
		},
	}
}
