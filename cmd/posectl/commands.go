package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/posewire/internal/config"
	"github.com/danmuck/posewire/internal/protocol"
	"github.com/danmuck/posewire/internal/protocol/tlv"
	"github.com/danmuck/posewire/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
)

var (
	keyFlag = cli.UintFlag{
		Name:  "key, k",
		Usage: "key id of the record frame (defaults to codec.default_key_id)",
	}
	inFlag = cli.StringFlag{
		Name:  "in, i",
		Usage: "input file, stdin when empty",
	}
	hexFlag = cli.BoolFlag{
		Name:  "hex",
		Usage: "input or output bytes are hex text",
	}
)

func encodeCommand(in io.Reader, out io.Writer) cli.Command {
	fieldFlags := []cli.Flag{
		cli.Float64Flag{Name: "x"},
		cli.Float64Flag{Name: "y"},
		cli.Float64Flag{Name: "z"},
		cli.Float64Flag{Name: "rx"},
		cli.Float64Flag{Name: "ry"},
		cli.Float64Flag{Name: "rz"},
		cli.UintFlag{Name: "rot"},
	}
	return cli.Command{
		Name:  "encode",
		Usage: "encode one pose record as a TLV frame",
		Flags: append([]cli.Flag{
			keyFlag,
			cli.BoolFlag{Name: "json", Usage: "read the record as JSON from --in or stdin"},
			inFlag,
			cli.BoolFlag{Name: "raw", Usage: "write raw bytes instead of hex"},
		}, fieldFlags...),
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			keyID, err := resolveKey(c, cfg)
			if err != nil {
				return err
			}

			var record protocol.Record
			if c.Bool("json") {
				raw, err := readInput(c.String("in"), in)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &record); err != nil {
					return fmt.Errorf("parse record json: %w", err)
				}
			} else {
				record, err = recordFromFlags(c)
				if err != nil {
					return err
				}
			}

			buf := protocol.Encode(record, keyID)
			log.Debug().Uint16("key_id", keyID).Int("bytes", len(buf)).Msg("record encoded")
			if c.Bool("raw") {
				_, err = out.Write(buf)
				return err
			}
			_, err = fmt.Fprintln(out, hex.EncodeToString(buf))
			return err
		},
	}
}

func recordFromFlags(c *cli.Context) (protocol.Record, error) {
	rot := c.Uint("rot")
	if rot > 0xFFFF {
		return protocol.Record{}, fmt.Errorf("rot %d out of range for u16", rot)
	}
	return protocol.Record{
		X:   float32(c.Float64("x")),
		Y:   float32(c.Float64("y")),
		Z:   float32(c.Float64("z")),
		RX:  float32(c.Float64("rx")),
		RY:  float32(c.Float64("ry")),
		RZ:  float32(c.Float64("rz")),
		Rot: uint16(rot),
	}, nil
}

type recordView struct {
	KeyID       uint16               `json:"key_id"`
	Record      protocol.Record      `json:"record"`
	Diagnostics protocol.Diagnostics `json:"diagnostics"`
}

type frameView struct {
	Offset  int              `json:"offset"`
	Entries []protocol.Entry `json:"entries"`
}

func decodeCommand(in io.Reader, out io.Writer) cli.Command {
	return cli.Command{
		Name:  "decode",
		Usage: "decode TLV bytes into JSON",
		Flags: []cli.Flag{
			inFlag,
			hexFlag,
			keyFlag,
			cli.BoolFlag{Name: "record, r", Usage: "project the frame at --key into a pose record"},
			cli.BoolFlag{Name: "stream", Usage: "decode top-level frames one at a time as JSON lines"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			decoder := protocol.NewDecoder(cfg.DecodeOptions())

			raw, err := readInput(c.String("in"), in)
			if err != nil {
				return err
			}
			if c.Bool("hex") {
				raw, err = hex.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
				if err != nil {
					return fmt.Errorf("parse hex input: %w", err)
				}
			}

			enc := json.NewEncoder(out)
			if c.Bool("stream") {
				return decodeStream(decoder, bytes.NewReader(raw), enc)
			}

			if c.Bool("record") {
				keyID, err := resolveKey(c, cfg)
				if err != nil {
					return err
				}
				record, diags, err := decoder.DecodeRecord(raw, keyID)
				if err != nil {
					return err
				}
				if diags == nil {
					diags = protocol.Diagnostics{}
				}
				enc.SetIndent("", "  ")
				return enc.Encode(recordView{KeyID: keyID, Record: record, Diagnostics: diags})
			}

			dict, err := decoder.Decode(raw)
			if err != nil {
				return err
			}
			enc.SetIndent("", "  ")
			return enc.Encode(dict.Entries())
		},
	}
}

// decodeStream decodes each top-level frame on its own so a bad frame late in
// the stream does not hide the ones before it.
func decodeStream(decoder *protocol.Decoder, r io.Reader, enc *json.Encoder) error {
	offset := 0
	for {
		f, err := tlv.ReadStreamFrame(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame at offset %d: %w", offset, err)
		}
		buf, err := f.Bytes()
		if err != nil {
			return err
		}
		dict, err := decoder.Decode(buf)
		if err != nil {
			return fmt.Errorf("frame at offset %d: %w", offset, err)
		}
		if err := enc.Encode(frameView{Offset: offset, Entries: dict.Entries()}); err != nil {
			return err
		}
		offset += len(buf)
	}
}

func serveCommand() cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "run the HTTP encode/decode service",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "addr", Usage: "listen address, overrides server.addr"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			opts := server.OptionsFromConfig(cfg)
			if addr := strings.TrimSpace(c.String("addr")); addr != "" {
				opts.Addr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(opts).Serve(ctx)
		},
	}
}

func configCommand(out io.Writer) cli.Command {
	return cli.Command{
		Name:  "config",
		Usage: "write or validate posewire config files",
		Subcommands: []cli.Command{
			{
				Name:  "init",
				Usage: "write a default config template",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "output, o", Value: "posewire.toml", Usage: "template path"},
					cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: func(c *cli.Context) error {
					target := c.String("output")
					if err := config.WriteTemplate(target, c.Bool("force")); err != nil {
						return err
					}
					_, err := fmt.Fprintf(out, "wrote config template to %s\n", target)
					return err
				},
			},
			{
				Name:      "validate",
				Usage:     "validate an existing config file",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						// --config already passed Load in app.Before
						path = c.GlobalString("config")
						if path == "" {
							return errors.New("config validate: path required")
						}
					} else if _, err := config.Load(path); err != nil {
						return err
					}
					_, err := fmt.Fprintf(out, "validated config at %s\n", path)
					return err
				},
			},
		},
	}
}

func resolveKey(c *cli.Context, cfg config.Config) (uint16, error) {
	if !c.IsSet("key") {
		return cfg.Codec.DefaultKeyID, nil
	}
	key := c.Uint("key")
	if key > 0xFFFF {
		return 0, fmt.Errorf("key %d out of range for u16", key)
	}
	return uint16(key), nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return raw, nil
}
