// Package main provides the colgraph CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/halvardix/colgraph/pkg/codec"
	"github.com/halvardix/colgraph/pkg/graph"
	"github.com/halvardix/colgraph/pkg/kvstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphdb",
		Short: "colgraph - a property-graph core over a wide-column store",
		Long: `colgraph is a property-graph database core layered on a wide-column
key/value store with super-column support.

It maintains denormalized outbound/inbound adjacency and a pair
relationship index so that typed traversal and existence queries never
scan a table.`,
	}
	rootCmd.PersistentFlags().String("backend", "memory", `backend spec: "memory" or a Badger data directory`)
	rootCmd.PersistentFlags().String("keyspace", "", "keyspace prefix for table names")
	rootCmd.PersistentFlags().String("config", "", "optional config file (yaml/json/toml) supplying defaults")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("graphdb v%s (%s)\n", version, commit)
			},
		},
		newCreateNodeCmd(),
		newGetNodeCmd(),
		newLinkCmd(),
		newNeighborsCmd(),
		newHasRelationshipCmd(),
	)

	cobra.OnInitialize(func() { initConfig(rootCmd) })

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig(root *cobra.Command) {
	path, _ := root.PersistentFlags().GetString("config")
	if path == "" {
		return
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not read config file:", err)
		return
	}
	if viper.IsSet("backend") && !root.PersistentFlags().Changed("backend") {
		_ = root.PersistentFlags().Set("backend", viper.GetString("backend"))
	}
	if viper.IsSet("keyspace") && !root.PersistentFlags().Changed("keyspace") {
		_ = root.PersistentFlags().Set("keyspace", viper.GetString("keyspace"))
	}
}

func openEngine(cmd *cobra.Command) (*graph.Engine, kvstore.Backend, error) {
	backendSpec, err := cmd.Flags().GetString("backend")
	if err != nil {
		return nil, nil, err
	}
	keyspace, err := cmd.Flags().GetString("keyspace")
	if err != nil {
		return nil, nil, err
	}

	backend, err := kvstore.Open(backendSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("open backend %q: %w", backendSpec, err)
	}
	engine, err := graph.New(keyspace, backend)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("construct engine: %w", err)
	}
	return engine, backend, nil
}

// parseAttrs turns "key=value" pairs into typed attributes, inferring
// bool/int/float when the value parses cleanly and falling back to
// string otherwise.
func parseAttrs(pairs []string) (graph.Attrs, error) {
	attrs := make(graph.Attrs, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", pair)
		}
		attrs[k] = inferValue(v)
	}
	return attrs, nil
}

func inferValue(raw string) codec.Value {
	switch raw {
	case "true":
		return codec.Bool(true)
	case "false":
		return codec.Bool(false)
	}
	var i int64
	if _, err := fmt.Sscanf(raw, "%d", &i); err == nil && fmt.Sprint(i) == raw {
		return codec.Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return codec.Float(f)
	}
	return codec.String(raw)
}

func printAttrs(attrs graph.Attrs) {
	plain := make(map[string]string, len(attrs))
	for k, v := range attrs {
		plain[k] = v.AsString()
	}
	out, _ := json.MarshalIndent(plain, "", "  ")
	fmt.Println(string(out))
}

func newCreateNodeCmd() *cobra.Command {
	var attrPairs []string
	cmd := &cobra.Command{
		Use:   "create-node <type> <key>",
		Short: "Create a node of the given type and key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := parseAttrs(attrPairs)
			if err != nil {
				return err
			}
			engine, backend, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			node, err := engine.CreateNode(args[0], args[1], attrs)
			if err != nil {
				return err
			}
			fmt.Printf("created (%s, %s)\n", node.Type, node.Key)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&attrPairs, "attr", nil, "attribute as key=value, repeatable")
	return cmd
}

func newGetNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-node <type> <key>",
		Short: "Print a node's attributes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, backend, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			node, err := engine.GetNode(args[0], args[1])
			if err != nil {
				return err
			}
			printAttrs(node.Attrs())
			return nil
		},
	}
	return cmd
}

func newLinkCmd() *cobra.Command {
	var key string
	var attrPairs []string
	cmd := &cobra.Command{
		Use:   "link <rel-type> <source-type> <source-key> <target-type> <target-key>",
		Short: "Create a relationship from a source node to a target node",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := parseAttrs(attrPairs)
			if err != nil {
				return err
			}
			engine, backend, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			source, err := engine.GetNode(args[1], args[2])
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			target, err := engine.GetNode(args[3], args[4])
			if err != nil {
				return fmt.Errorf("target: %w", err)
			}

			rel, err := source.Edges(args[0]).Create(target, key, attrs)
			if err != nil {
				return err
			}
			fmt.Printf("created relationship (%s, %s): %s/%s -> %s/%s\n",
				rel.Type, rel.Key, rel.Source.Type, rel.Source.Key, rel.Target.Type, rel.Target.Key)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "relationship key (generated if omitted)")
	cmd.Flags().StringArrayVar(&attrPairs, "attr", nil, "attribute as key=value, repeatable")
	return cmd
}

func newNeighborsCmd() *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "neighbors <rel-type> <node-type> <node-key>",
		Short: "List relationships of a type touching a node",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, backend, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			node, err := engine.GetNode(args[1], args[2])
			if err != nil {
				return err
			}

			factory := node.Edges(args[0])
			var rels []*graph.Relationship
			switch direction {
			case "outgoing":
				rels, err = factory.Outgoing()
			case "incoming":
				rels, err = factory.Incoming()
			default:
				rels, err = factory.All()
			}
			if err != nil {
				return err
			}

			for _, rel := range rels {
				fmt.Printf("%s/%s: %s/%s -> %s/%s\n",
					rel.Type, rel.Key, rel.Source.Type, rel.Source.Key, rel.Target.Type, rel.Target.Key)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "all", `"outgoing", "incoming", or "all"`)
	return cmd
}

func newHasRelationshipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "has-relationship <rel-type> <a-type> <a-key> <b-key>",
		Short: "Report whether a relationship of the given type connects two nodes",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, backend, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			a, err := engine.GetNode(args[1], args[2])
			if err != nil {
				return err
			}

			rels, err := engine.HasRelationship(a, args[3], args[0])
			if err != nil {
				return err
			}
			fmt.Println(len(rels) > 0)
			return nil
		},
	}
	return cmd
}
