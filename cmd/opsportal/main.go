// Command opsportal serves the ops portal API.
//
// Usage:
//
//	opsportal serve --config config.yaml
//	opsportal config-example ./config.example.yaml
//	opsportal version
package main

import (
	"fmt"

	"opsportal/internal/config"
	"opsportal/internal/version"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve         ServeCmd         `cmd:"" default:"1" help:"Start the API server."`
	Version       VersionCmd       `cmd:"" help:"Show version information."`
	ConfigExample ConfigExampleCmd `cmd:"" name:"config-example" help:"Write an example configuration file."`

	Config string `short:"c" help:"Path to config file." type:"path" env:"OPS_CONFIG"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version.GetInfo().String())
	return nil
}

// ConfigExampleCmd writes the default configuration as YAML.
type ConfigExampleCmd struct {
	Path string `arg:"" optional:"" help:"Destination file." type:"path" default:"config.example.yaml"`
}

func (c *ConfigExampleCmd) Run() error {
	if err := config.SaveExample(c.Path); err != nil {
		return err
	}
	fmt.Printf("Example configuration written to %s\n", c.Path)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("opsportal"),
		kong.Description("Ops portal API server"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
