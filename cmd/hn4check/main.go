// Command hn4check formats, mounts, and unmounts an HN4 volume against a
// file or block device, for manual inspection and scripting.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hydra4/hn4/hal"
	"github.com/hydra4/hn4/hn4"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		path       = flag.String("dev", "", "path to the device or file to operate on")
		action     = flag.String("action", "mount", "one of: format, mount, mountro")
		profile    = flag.String("profile", "generic", "format profile: generic, pico, system, ai, gaming, archive, usb")
		label      = flag.String("label", "", "volume label (format only)")
		sectorSize = flag.Uint("sector-size", 512, "logical sector size to report to the engine")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "hn4check: -dev is required")
		os.Exit(2)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	dev, err := hal.OpenFileDevice(*path)
	if err != nil {
		log.WithError(err).Fatal("open device")
	}
	h := hal.NewFileHAL(uint32(*sectorSize), 0)
	ctx := context.Background()

	switch *action {
	case "format":
		p := parseProfile(*profile)
		if err := hn4.Format(ctx, h, dev, hn4.WithProfile(p), hn4.WithLabel(*label)); err != nil {
			log.WithError(err).Fatal("format failed")
		}
		fmt.Println("format: OK")

	case "mount", "mountro":
		var flags hn4.MountIntentFlag
		if *action == "mountro" {
			flags = hn4.MountIntentReadOnly
		}
		vol, err := hn4.Mount(ctx, h, dev, hn4.MountParams{MountFlags: flags, Log: log})
		if err != nil {
			code := hn4.CodeOf(err)
			fmt.Fprintf(os.Stderr, "mount failed: %s (%v)\n", hn4.Strerror(code), err)
			os.Exit(1)
		}
		fmt.Printf("mount: OK read_only=%v taint=%d\n", vol.ReadOnly, vol.TaintCounter)
		if bt, ok := dev.BirthTime(); ok {
			fmt.Printf("device birth time: %s\n", bt.Format(time.RFC3339))
		}
		if hint, ok := dev.VolumeUUIDHint(); ok {
			fmt.Printf("volume uuid hint (xattr): %s\n", hint)
		}
		if err := hn4.Unmount(ctx, vol); err != nil {
			code := hn4.CodeOf(err)
			fmt.Fprintf(os.Stderr, "unmount failed: %s (%v)\n", hn4.Strerror(code), err)
			os.Exit(1)
		}
		fmt.Println("unmount: OK")

	default:
		fmt.Fprintf(os.Stderr, "hn4check: unknown -action %q\n", *action)
		os.Exit(2)
	}
}

func parseProfile(s string) hn4.Profile {
	switch s {
	case "pico":
		return hn4.ProfilePico
	case "system":
		return hn4.ProfileSystem
	case "ai":
		return hn4.ProfileAI
	case "gaming":
		return hn4.ProfileGaming
	case "archive":
		return hn4.ProfileArchive
	case "usb":
		return hn4.ProfileUSB
	case "zns":
		return hn4.ProfileZNS
	default:
		return hn4.ProfileGeneric
	}
}
