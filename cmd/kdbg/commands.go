package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "report daemon identity and uptime",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootID, uptime, err := api.health()
			if err != nil {
				return err
			}
			fmt.Printf("boot %s, up %s\n", bootID,
				(time.Duration(uptime) * time.Second).String())
			return nil
		},
	}
}

func psCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "list live processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := api.listProcesses()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tNAME")
			for _, p := range procs {
				fmt.Fprintf(w, "%d\t%s\n", p.PID, p.Name)
			}
			return w.Flush()
		},
	}
}

func createCmd() *cobra.Command {
	var base string
	var memBytes uint64
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "create a process with one mapped region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := strconv.ParseUint(base, 0, 64)
			if err != nil {
				return fmt.Errorf("invalid base: %v", err)
			}
			pid, handle, err := api.createProcess(args[0], b, memBytes)
			if err != nil {
				return err
			}
			fmt.Printf("pid %d, handle %d\n", pid, handle)
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "0x400000", "region base address")
	cmd.Flags().Uint64Var(&memBytes, "mem", 1<<20, "region size in bytes (page multiple)")
	return cmd
}

func destroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <pid>",
		Short: "tear a process down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid: %v", err)
			}
			return api.destroyProcess(uint32(pid))
		},
	}
}

func threadCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "thread <pid>",
		Short: "create a thread in a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid: %v", err)
			}
			tid, handle, err := api.createThread(uint32(pid), name)
			if err != nil {
				return err
			}
			fmt.Printf("tid %d, handle %d\n", tid, handle)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "main", "thread name")
	return cmd
}

func memCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mem",
		Short: "read or write process memory",
	}

	read := &cobra.Command{
		Use:   "read <handle> <vaddr> <length>",
		Short: "hex dump a memory range",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err1 := strconv.ParseUint(args[0], 10, 32)
			vaddr, err2 := strconv.ParseUint(args[1], 0, 64)
			length, err3 := strconv.ParseUint(args[2], 0, 64)
			if err1 != nil || err2 != nil || err3 != nil {
				return fmt.Errorf("invalid arguments")
			}
			data, err := api.readMemory(uint32(handle), vaddr, length)
			if err != nil {
				return err
			}
			dumper := hex.Dumper(os.Stdout)
			dumper.Write(data)
			return dumper.Close()
		},
	}

	write := &cobra.Command{
		Use:   "write <handle> <vaddr> <hex-bytes>",
		Short: "write hex bytes to a memory range",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err1 := strconv.ParseUint(args[0], 10, 32)
			vaddr, err2 := strconv.ParseUint(args[1], 0, 64)
			data, err3 := hex.DecodeString(args[2])
			if err1 != nil || err2 != nil || err3 != nil {
				return fmt.Errorf("invalid arguments")
			}
			actual, err := api.writeMemory(uint32(handle), vaddr, data)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes\n", actual)
			return nil
		},
	}

	cmd.AddCommand(read, write)
	return cmd
}

func regsCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "regs <thread-handle>",
		Short: "dump a thread's register state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid handle: %v", err)
			}
			data, err := api.readThreadState(uint32(handle), kind)
			if err != nil {
				return err
			}
			dumper := hex.Dumper(os.Stdout)
			dumper.Write(data)
			return dumper.Close()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "general", "state kind: general or fp")
	return cmd
}

func transferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <process-handle> <handle>",
		Short: "move a handle into another process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err1 := strconv.ParseUint(args[0], 10, 32)
			h, err2 := strconv.ParseUint(args[1], 10, 32)
			if err1 != nil || err2 != nil {
				return fmt.Errorf("invalid arguments")
			}
			nh, err := api.transferHandle(uint32(ph), uint32(h))
			if err != nil {
				return err
			}
			fmt.Printf("new handle %d\n", nh)
			return nil
		},
	}
}

func consoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "interact with the kernel console",
	}

	run := &cobra.Command{
		Use:   "run <command...>",
		Short: "dispatch a line to the command interpreter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := args[0]
			for _, a := range args[1:] {
				line += " " + a
			}
			return api.consoleCommand(line)
		},
	}

	write := &cobra.Command{
		Use:   "write <text>",
		Short: "emit text to the console sink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := api.consoleWrite([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes\n", n)
			return nil
		},
	}

	cmd.AddCommand(run, write)
	return cmd
}

func ktraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ktrace",
		Short: "control and read the kernel trace ring",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "ring occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := api.ktraceStats()
			if err != nil {
				return err
			}
			fmt.Printf("used %d/%d bytes, %d probes, running=%v\n",
				st.Used, st.Size, st.Probes, st.Running)
			return nil
		},
	}

	control := func(action, short string) *cobra.Command {
		return &cobra.Command{
			Use:   action,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := api.ktraceControl(action, "")
				return err
			},
		}
	}

	probe := &cobra.Command{
		Use:   "probe <name>",
		Short: "register a named probe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := api.ktraceControl("new_probe", args[0])
			if err != nil {
				return err
			}
			fmt.Printf("probe %d\n", id)
			return nil
		},
	}

	write := &cobra.Command{
		Use:   "write <event-id> [arg0] [arg1]",
		Short: "append a probe record",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var vals [3]uint32
			for i, a := range args {
				v, err := strconv.ParseUint(a, 0, 32)
				if err != nil {
					return fmt.Errorf("invalid argument %q: %v", a, err)
				}
				vals[i] = uint32(v)
			}
			return api.ktraceWrite(vals[0], vals[1], vals[2])
		},
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "print decoded trace records",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := api.ktraceRead(0, 1<<20)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tEVENT\tARG0\tARG1")
			for _, r := range records {
				fmt.Fprintf(w, "%d\t%#x\t%d\t%d\n",
					r.Timestamp, r.Tag&0x7FF, r.Arg0, r.Arg1)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(stats,
		control("start", "resume tracing"),
		control("stop", "pause tracing"),
		control("rewind", "discard ring contents (requires stopped)"),
		probe, write, dump)
	return cmd
}
