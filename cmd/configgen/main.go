package main

import (
	"flag"
	"log"

	"github.com/danmuck/vitalsgw/internal/config"
	"github.com/danmuck/vitalsgw/internal/identity"
)

func defaultPath(kind string) string {
	switch kind {
	case "gateway":
		return "cmd/vitalsctl/config.toml"
	case "identity":
		return "local/identity.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "gateway", "config kind: gateway|identity")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}

		switch *kind {
		case "gateway":
			if err := config.Check(path); err != nil {
				log.Fatal(err)
			}
			if _, err := config.Load(path); err != nil {
				log.Fatal(err)
			}
		case "identity":
			id, err := identity.Load(path)
			if err != nil {
				log.Fatal(err)
			}
			if err := identity.Validate(id.DeviceName); err != nil {
				log.Fatal(err)
			}
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
