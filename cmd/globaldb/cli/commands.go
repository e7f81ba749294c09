package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/globaldb/globaldb"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the library and backend version",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openConn()
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Fprintln(cmd.OutOrStdout(), conn.Version())
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get NAME [SUBSCRIPT...]",
	Short: "Read one node's value (empty if undefined)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openConn()
		if err != nil {
			return err
		}
		defer conn.Close()
		g := conn.MGlobal(args[0])
		v, err := g.Get(context.Background(), subsOf(args[1:])...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(v))
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set NAME [SUBSCRIPT...] VALUE",
	Short: "Write one node's value (the last argument is the value)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openConn()
		if err != nil {
			return err
		}
		defer conn.Close()
		g := conn.MGlobal(args[0])
		value := args[len(args)-1]
		return g.Set(context.Background(), []byte(value), subsOf(args[1:len(args)-1])...)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME [SUBSCRIPT...]",
	Short: "Delete a node and its entire subtree",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openConn()
		if err != nil {
			return err
		}
		defer conn.Close()
		return conn.MGlobal(args[0]).Delete(context.Background(), subsOf(args[1:])...)
	},
}

var definedCmd = &cobra.Command{
	Use:   "defined NAME [SUBSCRIPT...]",
	Short: "Classify a node: 0/1/10/11 for data and children",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openConn()
		if err != nil {
			return err
		}
		defer conn.Close()
		n, err := conn.MGlobal(args[0]).Defined(context.Background(), subsOf(args[1:])...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var nextCmd = &cobra.Command{
	Use:   "next NAME SUBSCRIPT...",
	Short: "Next sibling at the last subscript position (use \"\" to start)",
	Args:  cobra.MinimumNArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return siblingCmd(cmd, args, true) },
}

var prevCmd = &cobra.Command{
	Use:   "previous NAME SUBSCRIPT...",
	Short: "Previous sibling at the last subscript position (use \"\" to start)",
	Args:  cobra.MinimumNArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return siblingCmd(cmd, args, false) },
}

func siblingCmd(cmd *cobra.Command, args []string, forward bool) error {
	conn, err := openConn()
	if err != nil {
		return err
	}
	defer conn.Close()
	g := conn.MGlobal(args[0])
	var sub globaldb.Subscript
	var ok bool
	if forward {
		sub, ok, err = g.Next(context.Background(), subsOf(args[1:])...)
	} else {
		sub, ok, err = g.Previous(context.Background(), subsOf(args[1:])...)
	}
	if err != nil {
		return err
	}
	if !ok {
		return nil // end of range prints the empty string
	}
	fmt.Fprintln(cmd.OutOrStdout(), sub.Text)
	return nil
}

var incrCmd = &cobra.Command{
	Use:   "increment NAME [SUBSCRIPT...] DELTA",
	Short: "Atomically add DELTA to a node's numeric value",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openConn()
		if err != nil {
			return err
		}
		defer conn.Close()
		g := conn.MGlobal(args[0])
		delta := globaldb.Str(args[len(args)-1])
		v, err := g.Increment(context.Background(), delta, subsOf(args[1:len(args)-1])...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump [NAME]",
	Short: "Dump every node (of one global, or of all globals) in key order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openConn()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx := context.Background()
		var names []string
		if len(args) == 1 {
			names = []string{args[0]}
		} else {
			dir, err := conn.MGlobalQuery(globaldb.QueryDescriptor{}, globaldb.QueryOptions{GlobalDirectory: true})
			if err != nil {
				return err
			}
			for {
				item, err := dir.Next(ctx)
				if err != nil {
					dir.Close()
					return err
				}
				if item == nil {
					break
				}
				names = append(names, item.Name)
			}
			if err := dir.Close(); err != nil {
				return err
			}
		}

		for _, name := range names {
			cur, err := conn.MGlobalQuery(
				globaldb.QueryDescriptor{Global: name, Key: []globaldb.Subscript{globaldb.Str("")}},
				globaldb.QueryOptions{Multilevel: true, GetData: true, Format: globaldb.FormatURL},
			)
			if err != nil {
				return err
			}
			for {
				item, err := cur.Next(ctx)
				if err != nil {
					cur.Close()
					return err
				}
				if item == nil {
					break
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, item.MarshalURL())
			}
			if err := cur.Close(); err != nil {
				return err
			}
		}
		return nil
	},
}
