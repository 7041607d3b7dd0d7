package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"enginehook/config"
	"enginehook/engine"
	"enginehook/hexdump"
	"enginehook/iface"
	"enginehook/module"
	"enginehook/offsets"
	"enginehook/pod"
	"enginehook/process"

	"github.com/spf13/cobra"
)

// prologueLen is how many bytes are dumped at each hook.
const prologueLen = 32

var (
	offsetsFile string
	pid         int
	procName    string
	gameDir     string
	noColor     bool
)

func newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:          "hookinspect",
		Short:        "Check hook offsets against module files and a running host.",
		SilenceUsage: true,
	}
	rootCommand.PersistentFlags().StringVar(&offsetsFile, "offsets", "", "YAML offsets file overlaid on the built-in table (default $ENGINEHOOK_OFFSETS_FILE).")

	modulesCommand := &cobra.Command{
		Use:   "modules",
		Short: "List the base address of every known module in a running host.",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadOffsets()
			if err != nil {
				return err
			}
			proc, err := openTarget(pid, procName)
			if err != nil {
				return err
			}
			defer proc.Close()

			mods, err := proc.Modules()
			if err != nil {
				return err
			}
			writeModules(cmd.OutOrStdout(), table, mods)
			return nil
		},
	}
	addTargetFlags(modulesCommand)

	prologueCommand := &cobra.Command{
		Use:   "prologue",
		Short: "Dump the bytes at every hook offset in a running host.",
		Long: `Dump the bytes at every hook offset in a running host.

Hooks with a prologue pattern are compared against it and mismatching bytes
are highlighted. The command fails when any pattern does not match.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadOffsets()
			if err != nil {
				return err
			}
			proc, err := openTarget(pid, procName)
			if err != nil {
				return err
			}
			defer proc.Close()

			mods, err := proc.Modules()
			if err != nil {
				return err
			}
			return checkPrologues(cmd.OutOrStdout(), table, mods, proc, !noColor)
		},
	}
	addTargetFlags(prologueCommand)
	prologueCommand.Flags().BoolVar(&noColor, "no-color", false, "Disable colored hexdumps.")

	verifyCommand := &cobra.Command{
		Use:   "verify",
		Short: "Check offsets against the module files in a game directory.",
		Long: `Check offsets against the module files in a game directory.

Hook and function offsets must lie in executable sections, pointer offsets in
the image, and every module must export ` + iface.FactorySymbol + `.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadOffsets()
			if err != nil {
				return err
			}
			if gameDir == "" {
				return errors.New("--game-dir is required")
			}
			return verifyFiles(cmd.OutOrStdout(), table, gameDir)
		},
	}
	verifyCommand.Flags().StringVar(&gameDir, "game-dir", "", "Directory holding the host executable.")

	clientsCommand := &cobra.Command{
		Use:   "clients",
		Short: "List the occupied slots of the engine's client array in a running host.",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadOffsets()
			if err != nil {
				return err
			}
			proc, err := openTarget(pid, procName)
			if err != nil {
				return err
			}
			defer proc.Close()

			mods, err := proc.Modules()
			if err != nil {
				return err
			}
			return writeClients(cmd.OutOrStdout(), table, mods, proc)
		},
	}
	addTargetFlags(clientsCommand)

	rootCommand.AddCommand(modulesCommand, prologueCommand, verifyCommand, clientsCommand)
	return rootCommand
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&pid, "pid", 0, "Process ID of the host.")
	cmd.Flags().StringVar(&procName, "name", "", "Process name of the host.")
	cmd.MarkFlagsMutuallyExclusive("pid", "name")
	cmd.MarkFlagsOneRequired("pid", "name")
}

func loadOffsets() (offsets.Table, error) {
	cfg, err := config.Load()
	if err != nil {
		return offsets.Table{}, err
	}
	if offsetsFile != "" {
		cfg.OffsetsFile = offsetsFile
	}
	return cfg.Offsets()
}

// imageNames lists the file names a module may be mapped under.
func imageNames(name string, mo offsets.ModuleOffsets) []string {
	if mo.File != "" {
		return []string{mo.File}
	}
	return []string{name + ".dll", module.LibraryFilename(name)}
}

func findModule(name string, mo offsets.ModuleOffsets, mods []process.ModuleInfo) (process.ModuleInfo, bool) {
	for _, want := range imageNames(name, mo) {
		for _, m := range mods {
			if strings.EqualFold(m.Name, want) {
				return m, true
			}
		}
	}
	return process.ModuleInfo{}, false
}

func writeModules(w io.Writer, table offsets.Table, mods []process.ModuleInfo) {
	for _, name := range offsets.Order {
		mo, _ := table.Module(name)
		m, ok := findModule(name, mo, mods)
		if !ok {
			fmt.Fprintf(w, "%-16s not loaded\n", name)
			continue
		}
		fmt.Fprintf(w, "%-16s %s  %s  %s\n", name, m.Base.ToString(), m.Size.ToString(), m.Path)
	}
}

func checkPrologues(w io.Writer, table offsets.Table, mods []process.ModuleInfo, r process.MemoryReader, color bool) error {
	mismatches := 0
	for _, name := range offsets.Order {
		mo, _ := table.Module(name)
		if len(mo.Hooks) == 0 {
			continue
		}
		m, ok := findModule(name, mo, mods)
		if !ok {
			fmt.Fprintf(w, "%s: not loaded, skipping %d hooks\n", name, len(mo.Hooks))
			continue
		}

		for _, hook := range sortedNames(mo.Hooks) {
			h := mo.Hooks[hook]
			addr := m.Base.Add(h.Offset)
			code, err := r.ReadMemory(addr, prologueLen)
			if err != nil {
				return fmt.Errorf("%s.%s at %s: %w", name, hook, addr.ToString(), err)
			}

			aob, err := h.Pattern()
			if err != nil {
				return err
			}

			status := "no pattern"
			if aob != nil {
				status = "ok"
				if !aob.Match(code) {
					status = "MISMATCH"
					mismatches++
				}
			}
			fmt.Fprintf(w, "%s.%s %s+%#x (%s)\n", name, hook, name, h.Offset, status)

			options := hexdump.DefaultOptions()
			options.StartOffset = uint64(addr)
			options.OffsetWidth = 16
			options.Color = color
			options.Expected = aob
			fmt.Fprint(w, hexdump.Dump(code, options))
		}
	}

	if mismatches > 0 {
		return fmt.Errorf("%d hooks: %w", mismatches, offsets.ErrPrologueMismatch)
	}
	return nil
}

// writeClients prints the 1-based index and object of every occupied slot.
func writeClients(w io.Writer, table offsets.Table, mods []process.ModuleInfo, r pod.Reader) error {
	mo, _ := table.Module(offsets.Engine)
	m, ok := findModule(offsets.Engine, mo, mods)
	if !ok {
		return fmt.Errorf("%s: %w", offsets.Engine, process.ErrModuleNotMapped)
	}
	off, ok := mo.Pointers["client_array"]
	if !ok {
		return errors.New("no client_array offset")
	}

	slots, err := pod.ReadSliceT[uint64](r, m.Base.Add(off), engine.MaxPlayers)
	if err != nil {
		return fmt.Errorf("read client array: %w", err)
	}

	n := 0
	for i, client := range slots {
		if client == 0 {
			continue
		}
		n++
		fmt.Fprintf(w, "%2d  %s\n", i+1, process.ProcessMemoryAddress(client).ToString())
	}
	fmt.Fprintf(w, "%d of %d slots occupied\n", n, engine.MaxPlayers)
	return nil
}

func verifyFiles(w io.Writer, table offsets.Table, dir string) error {
	failures := 0
	for _, name := range offsets.Order {
		mo, _ := table.Module(name)
		file := mo.File
		if file == "" {
			file = name + ".dll"
		}
		path := filepath.Join(dir, filepath.FromSlash(mo.Subdir), file)

		im, err := openImage(path)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", name, err)
			failures++
			continue
		}
		failures += verifyImage(w, name, mo, im)
	}

	if failures > 0 {
		return fmt.Errorf("%d checks failed", failures)
	}
	return nil
}

// verifyImage reports each check on one module and returns the failures.
func verifyImage(w io.Writer, name string, mo offsets.ModuleOffsets, im *image) int {
	failures := 0
	report := func(kind, key string, s section, err error) {
		if err != nil {
			failures++
			fmt.Fprintf(w, "%s %s %s: FAIL %v\n", name, kind, key, err)
			return
		}
		fmt.Fprintf(w, "%s %s %s: ok (%s)\n", name, kind, key, s.name)
	}

	if !im.exports[iface.FactorySymbol] {
		failures++
		fmt.Fprintf(w, "%s: FAIL %s is not exported\n", name, iface.FactorySymbol)
	}
	for _, key := range sortedNames(mo.Hooks) {
		s, err := im.checkCode(mo.Hooks[key].Offset)
		report("hook", key, s, err)
	}
	for _, key := range sortedNames(mo.Functions) {
		s, err := im.checkCode(mo.Functions[key])
		report("function", key, s, err)
	}
	for _, key := range sortedNames(mo.Pointers) {
		s, err := im.checkData(mo.Pointers[key])
		report("pointer", key, s, err)
	}
	return failures
}
