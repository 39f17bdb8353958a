// hapctl pairs with and controls HomeKit accessories on the local network.
//
// Usage:
//
//	hapctl [--config FILE] command [arguments]
//
// Commands:
//
//	discover            list accessories advertising over mDNS
//	pair ID [PIN]       pair with an accessory
//	list                list stored pairings
//	get ID              print the properties of a device or logical device
//	set ID NAME VALUE   write one property
//	identify ID         trigger the identify routine
//	watch ID            print value changes until interrupted
//	unpair ID           remove a pairing
//
// IDs are device IDs (AA:BB:CC:DD:EE:FF) or, for accessories behind a
// bridge, logical IDs of the form AA:BB:CC:DD:EE:FF-<aid>.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/backkem/hap/pkg/catalog"
	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/storage"
	"github.com/pion/logging"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "hapctl"
	app.Usage = "HomeKit Accessory Protocol controller"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "configuration file"},
		cli.StringFlag{Name: "store", Usage: "pairing store path, overrides the configuration"},
		cli.StringFlag{Name: "log-level", Usage: "disabled, error, warn, info, debug or trace"},
	}
	app.Commands = []cli.Command{
		{
			Name:  "discover",
			Usage: "list accessories advertising over mDNS",
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "timeout, t", Value: 5 * time.Second, Usage: "how long to browse"},
			},
			Action: discover,
		},
		{Name: "pair", Usage: "pair with an accessory", ArgsUsage: "ID [PIN]", Action: pair},
		{Name: "list", Usage: "list stored pairings", Action: list},
		{Name: "get", Usage: "print properties", ArgsUsage: "ID", Action: get},
		{Name: "set", Usage: "write a property", ArgsUsage: "ID NAME VALUE", Action: set},
		{Name: "identify", Usage: "trigger the identify routine", ArgsUsage: "ID", Action: identify},
		{Name: "watch", Usage: "print value changes until interrupted", ArgsUsage: "ID", Action: watch},
		{Name: "unpair", Usage: "remove a pairing", ArgsUsage: "ID", Action: unpair},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "hapctl:", err)
		os.Exit(1)
	}
}

// env is what every command runs against.
type env struct {
	cfg     fileConfig
	lf      logging.LoggerFactory
	store   *storage.FileStore
	browser *discovery.Browser
	ctrl    *controller.Controller
	out     chan controller.Event
}

func setup(c *cli.Context) (*env, error) {
	path, explicit := c.GlobalString("config"), true
	if path == "" {
		path, explicit = defaultConfigPath(), false
	}
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return nil, err
	}
	if s := c.GlobalString("store"); s != "" {
		cfg.Store = s
	}
	if l := c.GlobalString("log-level"); l != "" {
		cfg.LogLevel = l
	}

	lf, err := loggerFactory(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, lf: lf, out: make(chan controller.Event, 64)}

	cat := catalog.New(catalog.Config{LoggerFactory: lf})
	if cfg.Extensions != "" {
		if _, err := cat.LoadExtensionsFile(cfg.Extensions); err != nil {
			return nil, err
		}
	}
	for id, pin := range cfg.PINs {
		if pairing.IsTrivialPIN(pin) {
			fmt.Fprintf(os.Stderr, "warning: setup code for %s is one HAP disallows\n", id)
		}
	}

	if e.store, err = storage.OpenFileStore(storage.FileStoreConfig{Path: cfg.Store, LoggerFactory: lf}); err != nil {
		return nil, err
	}
	e.browser, err = discovery.NewBrowser(discovery.BrowserConfig{FindTimeout: cfg.FindTimeout, LoggerFactory: lf})
	if err != nil {
		return nil, err
	}
	e.ctrl, err = controller.New(controller.Config{
		Store:         e.store,
		Catalog:       cat,
		PINs:          cfg.PINs,
		OnEvent:       e.event,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *env) close() {
	_ = e.ctrl.Close()
}

// event forwards value and error events to watch; others are dropped.
func (e *env) event(ev controller.Event) {
	if ev.Kind != controller.EventValue && ev.Kind != controller.EventError {
		return
	}
	select {
	case e.out <- ev:
	default:
	}
}

// find resolves the device behind id over mDNS and registers it.
func (e *env) find(ctx context.Context, id string) error {
	d, err := e.browser.Find(ctx, deviceOf(id))
	if err != nil {
		return err
	}
	e.ctrl.HandleDescriptor(d)
	return nil
}

// deviceOf strips a "-<aid>" suffix from a logical ID.
func deviceOf(id string) string {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return id
	}
	if _, err := strconv.ParseUint(id[i+1:], 10, 64); err != nil {
		return id
	}
	return id[:i]
}

// parseValue turns a command line value into a bool, an integer, a
// float or a string, in that order of preference.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "on", "yes":
		return true
	case "false", "off", "no":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func usage(c *cli.Context) error {
	return cli.ShowCommandHelp(c, c.Command.Name)
}

func discover(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	seen := map[string]*hap.AccessoryDescriptor{}
	err = e.browser.Browse(ctx, func(d *hap.AccessoryDescriptor) {
		seen[d.DeviceID] = d
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := seen[id]
		state := "unpaired"
		if d.Paired() {
			state = "paired"
		}
		if _, err := e.store.Load(id); err == nil {
			state = "paired with us"
		}
		fmt.Printf("%s  %-24s %-20s %s  %s\n", id, d.Name, d.Category, d.Address(), state)
	}
	return nil
}

func pair(c *cli.Context) error {
	if c.NArg() < 1 {
		return usage(c)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := context.Background()
	id := c.Args().Get(0)

	if err := e.find(ctx, id); err != nil {
		return err
	}
	pin := c.Args().Get(1)
	if pin != "" && pairing.IsTrivialPIN(pin) {
		fmt.Fprintln(os.Stderr, "warning: this setup code is one HAP disallows")
	}
	err = e.ctrl.Pair(ctx, id, pin)
	for errors.Is(err, pairing.ErrPINRequired) || errors.Is(err, pairing.ErrInvalidPIN) {
		fmt.Print("Setup code shown by the accessory: ")
		line, rerr := bufio.NewReader(os.Stdin).ReadString('\n')
		if rerr != nil {
			return rerr
		}
		err = e.ctrl.ProvidePIN(ctx, id, strings.TrimSpace(line))
	}
	if err != nil {
		return err
	}
	for _, l := range e.ctrl.LogicalDevices() {
		fmt.Printf("%s  %s\n", l.ID(), l.Name())
	}
	return nil
}

func list(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	ids, err := e.store.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func get(c *cli.Context) error {
	if c.NArg() < 1 {
		return usage(c)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := context.Background()
	id := c.Args().Get(0)

	if err := e.find(ctx, id); err != nil {
		return err
	}
	props, err := e.ctrl.Properties(ctx, id)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-24s %v\n", name, props[name])
	}
	return nil
}

func set(c *cli.Context) error {
	if c.NArg() < 3 {
		return usage(c)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := context.Background()
	id := c.Args().Get(0)

	if err := e.find(ctx, id); err != nil {
		return err
	}
	return e.ctrl.SetProperty(ctx, id, c.Args().Get(1), parseValue(c.Args().Get(2)))
}

func identify(c *cli.Context) error {
	if c.NArg() < 1 {
		return usage(c)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := context.Background()
	id := c.Args().Get(0)

	if err := e.find(ctx, id); err != nil {
		return err
	}
	return e.ctrl.Invoke(ctx, id, "identify")
}

func watch(c *cli.Context) error {
	if c.NArg() < 1 {
		return usage(c)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	id := c.Args().Get(0)

	if err := e.find(ctx, id); err != nil {
		return err
	}
	if err := e.ctrl.Watch(ctx, id); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.out:
			if ev.Kind == controller.EventError {
				return ev.Err
			}
			name := ev.Property
			if name == "" {
				name = ev.ID.String()
			}
			who := ev.DeviceID
			if ev.Logical != nil {
				who = ev.Logical.ID()
			}
			fmt.Printf("%s  %s  %s = %v\n", time.Now().Format(time.TimeOnly), who, name, ev.Value)
		}
	}
}

func unpair(c *cli.Context) error {
	if c.NArg() < 1 {
		return usage(c)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := context.Background()
	id := c.Args().Get(0)

	if err := e.find(ctx, id); err != nil {
		return err
	}
	return e.ctrl.Unpair(ctx, id)
}
