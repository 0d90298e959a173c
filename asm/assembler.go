package asm

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/example/meshisim/core"
)

// Assemble runs the two-pass assembler over src: the first pass strips
// comments/blank lines and records label positions, the second parses
// each remaining line into an Instr. Grounded on original_source's
// Assembler::assemble_from_string, minus the shared label_to_pc singleton
// (spec.md section 9's redesign flag) — here it comes back as part of
// the returned Program.
func Assemble(src string) (Program, error) {
	lines, err := stripCommentsAndBlanks(src)
	if err != nil {
		return Program{}, err
	}

	labels := make(map[string]int)
	code := make([]sourceLine, 0, len(lines))
	pc := 0
	for _, l := range lines {
		if strings.HasSuffix(l.text, ":") {
			name := strings.TrimSpace(strings.TrimSuffix(l.text, ":"))
			if name == "" {
				return Program{}, &core.AssemblyError{Line: l.lineNo, Msg: "empty label"}
			}
			if _, dup := labels[name]; dup {
				return Program{}, &core.AssemblyError{Line: l.lineNo, Msg: "duplicate label: " + name}
			}
			labels[name] = pc
			continue
		}
		code = append(code, l)
		pc++
	}

	prog := Program{Code: make([]Instr, 0, len(code)), Labels: labels}
	for _, l := range code {
		ins, err := parseInstr(l.text, l.lineNo)
		if err != nil {
			return Program{}, err
		}
		prog.Code = append(prog.Code, ins)
	}
	return prog, nil
}

// AssembleFile reads path and assembles it.
func AssembleFile(path string) (Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Program{}, &core.AssemblyError{Msg: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	return Assemble(string(data))
}

type sourceLine struct {
	text   string
	lineNo int
}

func stripCommentsAndBlanks(src string) ([]sourceLine, error) {
	var out []sourceLine
	for i, raw := range strings.Split(src, "\n") {
		s := stripComment(raw)
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, sourceLine{text: s, lineNo: i + 1})
	}
	return out, nil
}

func stripComment(line string) string {
	if idx := strings.IndexAny(line, ";#"); idx >= 0 {
		return line[:idx]
	}
	return line
}

func tokenize(line string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, c := range line {
		switch {
		case c == '[' || c == ']' || c == ',' || c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return toks
}

func parseReg(tok string, lineNo int) (int, error) {
	if len(tok) < 4 || !strings.EqualFold(tok[:3], "REG") {
		return 0, &core.AssemblyError{Line: lineNo, Msg: "invalid register: " + tok}
	}
	idx, err := strconv.Atoi(tok[3:])
	if err != nil || idx < 0 || idx > 7 {
		return 0, &core.AssemblyError{Line: lineNo, Msg: "register out of range: " + tok}
	}
	return idx, nil
}

func parseImm(tok string, lineNo int) (uint64, error) {
	if len(tok) > 2 && tok[0] == '0' && (tok[1] == 'x' || tok[1] == 'X') {
		v, err := strconv.ParseUint(tok[2:], 16, 64)
		if err != nil {
			return 0, &core.AssemblyError{Line: lineNo, Msg: "invalid hex immediate: " + tok}
		}
		return v, nil
	}
	v, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return 0, &core.AssemblyError{Line: lineNo, Msg: "invalid immediate: " + tok}
	}
	return v, nil
}

func parseInstr(line string, lineNo int) (Instr, error) {
	toks := tokenize(line)
	if len(toks) == 0 {
		return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "empty instruction"}
	}

	mnemonic := strings.ToUpper(toks[0])
	switch mnemonic {
	case "LOAD":
		if len(toks) != 3 {
			return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "syntax: LOAD Rd, [Ra]"}
		}
		rd, err := parseReg(toks[1], lineNo)
		if err != nil {
			return Instr{}, err
		}
		ra, err := parseReg(toks[2], lineNo)
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: LOAD, Rd: rd, Ra: ra}, nil

	case "STORE":
		if len(toks) != 3 {
			return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "syntax: STORE Ra, [Rd]"}
		}
		ra, err := parseReg(toks[1], lineNo)
		if err != nil {
			return Instr{}, err
		}
		rd, err := parseReg(toks[2], lineNo)
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: STORE, Ra: ra, Rd: rd}, nil

	case "FMUL", "FADD":
		if len(toks) != 4 {
			return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "syntax: " + mnemonic + " Rd, Ra, Rb"}
		}
		rd, err := parseReg(toks[1], lineNo)
		if err != nil {
			return Instr{}, err
		}
		ra, err := parseReg(toks[2], lineNo)
		if err != nil {
			return Instr{}, err
		}
		rb, err := parseReg(toks[3], lineNo)
		if err != nil {
			return Instr{}, err
		}
		op := FMUL
		if mnemonic == "FADD" {
			op = FADD
		}
		return Instr{Op: op, Rd: rd, Ra: ra, Rb: rb}, nil

	case "REDUCE":
		if len(toks) != 4 {
			return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "syntax: REDUCE Rd, Ra, Rb"}
		}
		rd, err := parseReg(toks[1], lineNo)
		if err != nil {
			return Instr{}, err
		}
		ra, err := parseReg(toks[2], lineNo)
		if err != nil {
			return Instr{}, err
		}
		rb, err := parseReg(toks[3], lineNo)
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: REDUCE, Rd: rd, Ra: ra, Rb: rb}, nil

	case "INC", "DEC":
		if len(toks) != 2 {
			return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "syntax: " + mnemonic + " Reg"}
		}
		rd, err := parseReg(toks[1], lineNo)
		if err != nil {
			return Instr{}, err
		}
		op := INC
		if mnemonic == "DEC" {
			op = DEC
		}
		return Instr{Op: op, Rd: rd}, nil

	case "MOVI":
		if len(toks) != 3 {
			return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "syntax: MOVI Reg, Imm"}
		}
		rd, err := parseReg(toks[1], lineNo)
		if err != nil {
			return Instr{}, err
		}
		imm, err := parseImm(toks[2], lineNo)
		if err != nil {
			return Instr{}, err
		}
		return Instr{Op: MOVI, Rd: rd, Imm: imm}, nil

	case "JNZ":
		if len(toks) != 2 {
			return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "syntax: JNZ label (implicit REG0)"}
		}
		return Instr{Op: JNZ, Label: toks[1]}, nil

	default:
		return Instr{}, &core.AssemblyError{Line: lineNo, Msg: "unsupported mnemonic: " + toks[0]}
	}
}
