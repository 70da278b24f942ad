//go:build linux

// Command hwsim-radios inspects and removes mac80211_hwsim radios.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/romshark/hwsim-medium/hwsim"
	"github.com/romshark/hwsim-medium/netns"
)

func usage() {
	fmt.Fprint(os.Stderr, `usage: hwsim-radios [-netns name] <command>

commands:
  list              list every radio
  get -id N         show one radio
  del -id N|-name S delete a radio
  netns             list named network namespaces
`)
	os.Exit(2)
}

func main() {
	fNetns := flag.String("netns", "", "run inside the named network namespace")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "netns" {
		names, err := netns.List()
		fatalIf(err, "listing namespaces")
		for _, n := range names {
			h, err := netns.Open(n)
			if err != nil {
				fmt.Printf("%-20s %v\n", n, err)
				continue
			}
			fmt.Printf("%-20s %s\n", n, h.ID())
			h.Close()
		}
		return
	}

	conn := dial(*fNetns)
	defer conn.Close()

	switch cmd {
	case "list":
		radios, err := conn.Radios(&hwsim.RadioQuery{})
		fatalIf(err, "listing radios")
		for _, r := range radios {
			printRadio(r)
		}
	case "get":
		fs := flag.NewFlagSet("get", flag.ExitOnError)
		fID := fs.Int64("id", -1, "radio id")
		_ = fs.Parse(args)
		if *fID < 0 {
			usage()
		}
		id := uint32(*fID)
		radios, err := conn.Radios(&hwsim.RadioQuery{ID: &id})
		fatalIf(err, "getting radio %d", id)
		for _, r := range radios {
			printRadio(r)
		}
	case "del":
		fs := flag.NewFlagSet("del", flag.ExitOnError)
		fID := fs.Int64("id", -1, "radio id")
		fName := fs.String("name", "", "radio name")
		_ = fs.Parse(args)
		req := &hwsim.DelRadio{Name: *fName}
		if *fID >= 0 {
			id := uint32(*fID)
			req.ID = &id
		}
		_, err := conn.Request(req)
		fatalIf(err, "deleting radio")
	default:
		usage()
	}
}

func dial(ns string) *hwsim.Conn {
	if ns == "" {
		conn, err := hwsim.Dial()
		fatalIf(err, "connecting to %s", hwsim.FamilyName)
		return conn
	}
	h, err := netns.Open(ns)
	fatalIf(err, "opening namespace")
	defer h.Close()
	var conn *hwsim.Conn
	err = h.Do(func() (err error) {
		conn, err = hwsim.Dial()
		return err
	})
	fatalIf(err, "connecting to %s in %q", hwsim.FamilyName, ns)
	return conn
}

func printRadio(r hwsim.NewRadio) {
	var id string
	if r.ID != nil {
		id = fmt.Sprint(*r.ID)
	}
	var caps []string
	for _, c := range []struct {
		on   bool
		name string
	}{
		{r.SupportP2PDevice, "p2p-device"},
		{r.UseChanctx, "chanctx"},
		{r.DestroyOnClose, "destroy-on-close"},
		{r.NoVIF, "no-vif"},
	} {
		if c.on {
			caps = append(caps, c.name)
		}
	}
	fmt.Printf("%-4s %-12s %s channels=%d %s\n",
		id, r.Name, r.PermAddr, r.Channels, strings.Join(caps, ","))
}

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}
