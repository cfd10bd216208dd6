package assemble

import "github.com/zil-lang/zilc/pkg/ast"

// buildTables appends each TABLE/ITABLE/LTABLE declaration's bytes in
// declaration order, recording decl.Address for later reference by
// name (spec §3 "Table"). Separated from buildObjectTable since
// dynamic (non-PURE) tables are laid out before the static memory
// boundary and PURE tables after it (spec §4.9 layout steps 6 and 8).
func (a *Assembler) buildTables(img []byte, decls []*ast.TableDecl) ([]byte, []fixup, error) {
	var fixups []fixup
	for _, td := range decls {
		data, fx, err := a.buildTableBytes(td)
		if err != nil {
			return nil, nil, err
		}
		base := len(img)
		td.Address = base
		for i := range fx {
			fx[i].offset += base
		}
		fixups = append(fixups, fx...)
		img = append(img, data...)
	}
	return img, fixups, nil
}

func (a *Assembler) buildTableBytes(td *ast.TableDecl) ([]byte, []fixup, error) {
	elemWidth := 2
	if td.Flags&ast.TableByte != 0 {
		elemWidth = 1
	}

	n := len(td.Initializers)
	if td.Kind == ast.TableITable && td.DeclaredLen > n {
		n = td.DeclaredLen
	}

	var data []byte
	var fx []fixup
	for i := 0; i < n; i++ {
		var v *ast.Value
		if i < len(td.Initializers) {
			v = td.Initializers[i]
		}
		b, f := a.valueBytes(v, elemWidth)
		base := len(data)
		for j := range f {
			f[j].offset += base
		}
		data = append(data, b...)
		fx = append(fx, f...)
	}

	if td.Flags&ast.TableLength != 0 {
		prefix := []byte{byte(n >> 8), byte(n)}
		for i := range fx {
			fx[i].offset += len(prefix)
		}
		data = append(prefix, data...)
	}
	return data, fx, nil
}
