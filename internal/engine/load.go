package engine

import (
	"os"

	"github.com/ehrlich-b/scriptbot/internal/ir"
	"github.com/ehrlich-b/scriptbot/internal/lang"
)

// LoadScript parses and validates the script files at paths, in
// order, into a StateGraph and its VariableSchema (spec §4.1/§4.2).
func LoadScript(paths []string) (*ir.StateGraph, *ir.VariableSchema, error) {
	prog, err := lang.ParseFiles(paths, func(path string) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ir.Build(prog)
}
