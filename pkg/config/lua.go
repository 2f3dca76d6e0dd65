package config

import (
	"fmt"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"
)

// LoadLua executes an experiment script that returns a config table.
// Keys are snake_case, e.g. `return { transport = "reno", bottleneck = { data_rate = "2Mbps" } }`.
func LoadLua(path string) (*Config, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoFile(path); err != nil {
		return nil, err
	}
	return fromLuaStack(L)
}

// ParseConfigLua runs a Lua chunk held in memory
func ParseConfigLua(source string) (*Config, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(source); err != nil {
		return nil, err
	}
	return fromLuaStack(L)
}

func fromLuaStack(L *lua.LState) (*Config, error) {
	table, ok := L.Get(-1).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: lua script did not return a table", ErrInvalidConfig)
	}

	cfg := Default()
	if err := gluamapper.Map(table, cfg); err != nil {
		return nil, fmt.Errorf("failed to map lua table: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
