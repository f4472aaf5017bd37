// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/pflag"
)

// requiredAnnotation marks a flag that Execute refuses to run without.
const requiredAnnotation = "raptorcast_required"

// FlagsFromParams returns a flag set bound to the tagged fields of
// params, which must point to a struct. Field tags:
//
//	flag:"name" or flag:"name,n"  long name and optional shorthand
//	desc:"..."                    help text
//	default:"..."                 default, parsed as a command-line value
//	required:"true"               Execute fails when the flag is absent
//
// Fields of embedded structs such as [JSONOutput] are promoted. Flag
// fields are string, bool or int. A malformed params struct panics.
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := bindParams(flags, params); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flags
}

func bindParams(flags *pflag.FlagSet, params any) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must point to a struct, got %T", params)
	}
	structValue := value.Elem()

	for _, field := range reflect.VisibleFields(structValue.Type()) {
		tag, ok := field.Tag.Lookup("flag")
		if !ok || field.Anonymous {
			continue
		}
		name, shorthand, _ := strings.Cut(tag, ",")
		usage := field.Tag.Get("desc")

		switch target := structValue.FieldByIndex(field.Index).Addr().Interface().(type) {
		case *string:
			flags.StringVarP(target, name, shorthand, "", usage)
		case *bool:
			flags.BoolVarP(target, name, shorthand, false, usage)
		case *int:
			flags.IntVarP(target, name, shorthand, 0, usage)
		default:
			return fmt.Errorf("field %s: --%s has unsupported type %s", field.Name, name, field.Type)
		}

		flag := flags.Lookup(name)
		// Value.Set leaves Changed false, so a default never satisfies
		// required.
		if def := field.Tag.Get("default"); def != "" {
			if err := flag.Value.Set(def); err != nil {
				return fmt.Errorf("field %s: default for --%s: %w", field.Name, name, err)
			}
			flag.DefValue = flag.Value.String()
		}
		if field.Tag.Get("required") == "true" {
			flag.Annotations = map[string][]string{requiredAnnotation: {"true"}}
		}
	}
	return nil
}

// missingRequired lists the required flags that were not given.
func missingRequired(flags *pflag.FlagSet) []string {
	var missing []string
	flags.VisitAll(func(flag *pflag.Flag) {
		if _, ok := flag.Annotations[requiredAnnotation]; ok && !flag.Changed {
			missing = append(missing, "--"+flag.Name)
		}
	})
	return missing
}
