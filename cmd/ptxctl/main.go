// Command ptxctl 可编程交易命令行客户端
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/docopt/docopt-go"

	"github.com/weisyn/ptx-sdk-go/client"
	"github.com/weisyn/ptx-sdk-go/resolver"
	"github.com/weisyn/ptx-sdk-go/services/transaction"
	"github.com/weisyn/ptx-sdk-go/txspec"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/wallet"
)

const usage = `ptxctl - programmable transaction client

Usage:
  ptxctl [options] address [--generate]
  ptxctl [options] gas [<owner>]
  ptxctl [options] object <id>
  ptxctl [options] tx <digest>
  ptxctl [options] run <spec> [--var=<kv>...] [--dry-run]
  ptxctl -h | --help
  ptxctl --version

Options:
  -h --help            Show this screen.
  --version            Show version.
  -c --config=<file>   Config file [default: ptxctl.yaml].
  --password=<pw>      Keystore password (defaults to $PTX_KEYSTORE_PASSWORD).
  --var=<kv>           Spec variable as key=value.
  --dry-run            Build and print the transaction without submitting it.
  --debug              Debug logging.
`

// Opts 命令行参数
type Opts struct {
	Address  bool
	Gas      bool
	Object   bool
	Tx       bool
	Run      bool
	Generate bool     `docopt:"--generate"`
	Owner    string   `docopt:"<owner>"`
	ID       string   `docopt:"<id>"`
	Digest   string   `docopt:"<digest>"`
	Spec     string   `docopt:"<spec>"`
	Vars     []string `docopt:"--var"`
	DryRun   bool     `docopt:"--dry-run"`
	Config   string   `docopt:"--config"`
	Password string   `docopt:"--password"`
	Debug    bool     `docopt:"--debug"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) (rc int) {
	parser := &docopt.Parser{HelpHandler: func(err error, text string) {
		if err != nil {
			fmt.Fprintln(os.Stderr, text)
			return
		}
		fmt.Fprintln(out, text)
	}}
	o, err := parser.ParseArgs(usage, args, "0.1.0")
	if err != nil {
		return 2
	}
	if o == nil {
		// --help / --version
		return 0
	}
	var opts Opts
	if err := o.Bind(&opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		logger.Error("Load config failed", "error", err)
		return 1
	}
	cfg.Client.Logger = logger

	app := &app{opts: opts, cfg: cfg, logger: logger, out: out}
	if err := app.dispatch(context.Background()); err != nil {
		attrs := []any{"error", err}
		if e, ok := types.AsError(err); ok {
			attrs = append(attrs, "kind", string(e.Kind), "code", e.Code, "traceId", e.TraceID)
		}
		logger.Error("Command failed", attrs...)
		return 1
	}
	return 0
}

type app struct {
	opts   Opts
	cfg    *cliConfig
	logger *slog.Logger
	out    io.Writer
}

func (a *app) dispatch(ctx context.Context) error {
	switch {
	case a.opts.Address:
		return a.address()
	case a.opts.Gas:
		return a.withNode(func(node *client.NodeClient) error { return a.gas(ctx, node) })
	case a.opts.Object:
		return a.withNode(func(node *client.NodeClient) error { return a.object(ctx, node) })
	case a.opts.Tx:
		return a.withNode(func(node *client.NodeClient) error { return a.transaction(ctx, node) })
	case a.opts.Run:
		return a.withNode(func(node *client.NodeClient) error { return a.runSpec(ctx, node) })
	}
	return fmt.Errorf("no command")
}

func (a *app) withNode(fn func(*client.NodeClient) error) error {
	node, err := client.Dial(a.cfg.Client)
	if err != nil {
		return err
	}
	defer node.Close()
	return fn(node)
}

func (a *app) keystore() (*wallet.FileKeyStore, error) {
	password := a.opts.Password
	if password == "" {
		password = os.Getenv("PTX_KEYSTORE_PASSWORD")
	}
	return wallet.NewFileKeyStore(a.cfg.Keystore, password)
}

func (a *app) sender(ks wallet.KeyStore) (types.Address, error) {
	if !a.cfg.Sender.IsZero() {
		return a.cfg.Sender, nil
	}
	addrs := ks.Addresses()
	if len(addrs) == 0 {
		return types.Address{}, fmt.Errorf("keystore %s is empty, run `ptxctl address --generate`", a.cfg.Keystore)
	}
	return addrs[0], nil
}

func (a *app) address() error {
	ks, err := a.keystore()
	if err != nil {
		return err
	}
	if a.opts.Generate {
		kp, err := wallet.NewKeypair(a.cfg.Scheme)
		if err != nil {
			return err
		}
		path, err := ks.Import(kp)
		if err != nil {
			return err
		}
		a.logger.Info("Key generated", "address", kp.Address().String(), "scheme", kp.Scheme().String(), "file", path)
	}
	for _, addr := range ks.Addresses() {
		fmt.Fprintln(a.out, addr)
	}
	return nil
}

func (a *app) gas(ctx context.Context, node *client.NodeClient) error {
	var owner types.Address
	if a.opts.Owner != "" {
		var err error
		if owner, err = types.ParseAddress(a.opts.Owner); err != nil {
			return err
		}
	} else {
		ks, err := a.keystore()
		if err != nil {
			return err
		}
		if owner, err = a.sender(ks); err != nil {
			return err
		}
	}

	coins, err := resolver.New(node).GasCoins(ctx, owner, resolver.GasOptions{})
	if err != nil {
		return err
	}
	for _, c := range coins {
		fmt.Fprintf(a.out, "%s  %d  %s\n", c.Ref.ObjectID, c.Ref.Version, types.FormatAmount(*c.Balance))
	}
	return nil
}

func (a *app) object(ctx context.Context, node *client.NodeClient) error {
	id, err := types.ParseObjectID(a.opts.ID)
	if err != nil {
		return err
	}
	info, err := node.GetObject(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "id:      %s\nversion: %d\ndigest:  %s\ntype:    %s\nowner:   %s\n",
		info.Ref.ObjectID, info.Ref.Version, info.Ref.Digest, info.Type, info.Owner)
	if info.Balance != nil {
		fmt.Fprintf(a.out, "balance: %s\n", types.FormatAmount(*info.Balance))
	}
	return nil
}

func (a *app) transaction(ctx context.Context, node *client.NodeClient) error {
	digest, err := types.ParseDigest(a.opts.Digest)
	if err != nil {
		return err
	}
	res, err := node.GetTransaction(ctx, digest)
	if err != nil {
		return err
	}
	a.printResult(res)
	return nil
}

func (a *app) runSpec(ctx context.Context, node *client.NodeClient) error {
	vars, err := parseVars(a.opts.Vars)
	if err != nil {
		return err
	}
	spec, err := txspec.Load(a.opts.Spec, vars)
	if err != nil {
		return err
	}

	ks, err := a.keystore()
	if err != nil {
		return err
	}
	sender, err := a.sender(ks)
	if err != nil {
		return err
	}
	svc, err := transaction.NewService(node, ks, &transaction.Config{
		Sender:    sender,
		GasBudget: a.cfg.GasBudget,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	payload, err := svc.Build(ctx, spec.Request)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "digest:   %s\nsender:   %s\ngas:      %s\nbudget:   %s\ninputs:   %d\ncommands: %d\n",
		payload.Digest(), payload.Sender(), payload.GasPayment()[0], types.FormatAmount(payload.GasBudget()),
		len(payload.Transaction().Inputs()), len(payload.Transaction().Commands()))
	if a.opts.DryRun {
		return nil
	}

	signed, err := svc.Sign(payload)
	if err != nil {
		return err
	}
	mode := a.cfg.Mode
	if spec.Mode != "" {
		mode = spec.Mode
	}
	res, err := svc.Submit(ctx, signed, mode)
	if err != nil {
		return err
	}
	a.printResult(res)
	return nil
}

func (a *app) printResult(res *types.ExecutionResult) {
	fmt.Fprintf(a.out, "digest:   %s\nstatus:   %s\n", res.Digest, res.Status)
	if res.Error != "" {
		fmt.Fprintf(a.out, "error:    %s\n", res.Error)
	}
	fmt.Fprintf(a.out, "gas used: %d (computation %d, storage %d, rebate %d)\n",
		res.GasUsed.Net(), res.GasUsed.ComputationCost, res.GasUsed.StorageCost, res.GasUsed.StorageRebate)
	for _, ref := range res.Created {
		fmt.Fprintf(a.out, "created:  %s\n", ref)
	}
	for _, ref := range res.Mutated {
		fmt.Fprintf(a.out, "mutated:  %s\n", ref)
	}
}

// parseVars 解析 key=value 形式的规格变量
func parseVars(kvs []string) (map[string]string, error) {
	vars := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", kv)
		}
		vars[k] = v
	}
	return vars, nil
}
