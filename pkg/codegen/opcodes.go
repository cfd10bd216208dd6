// Package codegen lowers ZIL routine bodies to ir.Instructions and
// encodes them into the Z-machine's long/short/variable/extended
// instruction forms (spec §6). Opcode availability is entirely
// data-driven: every mnemonic's number, operand-count class and
// minimum version live in the single opcodeTable below, so adding or
// correcting an opcode never touches the encoder itself (spec §6
// "single lookup table, never hard-coded").
package codegen

import (
	"fmt"

	"github.com/zil-lang/zilc/pkg/ir"
)

// OpClass is the Z-machine's operand-count instruction class, which
// determines which of the four instruction forms (long/short/
// variable/extended) is used to encode it.
type OpClass int

const (
	Op0 OpClass = iota // 0OP
	Op1                // 1OP
	Op2                // 2OP
	OpVar              // VAR
	OpExt              // EXT (V5+, extended form only)
)

// opcodeInfo is one opcodeTable entry: a mnemonic's class, raw opcode
// number within its class, and the minimum Z-machine version it's
// available on.
type opcodeInfo struct {
	Class      OpClass
	Number     byte
	MinVersion int
	MaxVersion int // 0 = no upper bound
}

// opcodeTable is the version-opcode availability matrix spec §6 calls
// for: every mnemonic codegen can emit, looked up once at encode time.
var opcodeTable = map[ir.Op]opcodeInfo{
	// 2OP (numbers 1..28, long or variable form)
	"JE":       {Op2, 0x01, 3, 0},
	"JL":       {Op2, 0x02, 3, 0},
	"JG":       {Op2, 0x03, 3, 0},
	"DEC_CHK":  {Op2, 0x04, 3, 0},
	"INC_CHK":  {Op2, 0x05, 3, 0},
	"JIN":      {Op2, 0x06, 3, 0},
	"TEST":     {Op2, 0x07, 3, 0},
	"OR":       {Op2, 0x08, 3, 0},
	"AND":      {Op2, 0x09, 3, 0},
	"TEST_ATTR": {Op2, 0x0A, 3, 0},
	"SET_ATTR":  {Op2, 0x0B, 3, 0},
	"CLEAR_ATTR": {Op2, 0x0C, 3, 0},
	"STORE":     {Op2, 0x0D, 3, 0},
	"INSERT_OBJ": {Op2, 0x0E, 3, 0},
	"LOADW":     {Op2, 0x0F, 3, 0},
	"LOADB":     {Op2, 0x10, 3, 0},
	"GET_PROP":  {Op2, 0x11, 3, 0},
	"GET_PROP_ADDR": {Op2, 0x12, 3, 0},
	"GET_NEXT_PROP": {Op2, 0x13, 3, 0},
	"ADD":       {Op2, 0x14, 3, 0},
	"SUB":       {Op2, 0x15, 3, 0},
	"MUL":       {Op2, 0x16, 3, 0},
	"DIV":       {Op2, 0x17, 3, 0},
	"MOD":       {Op2, 0x18, 3, 0},
	"CALL_2S":   {Op2, 0x19, 4, 0},
	"CALL_2N":   {Op2, 0x1A, 5, 0},
	"SET_COLOUR": {Op2, 0x1B, 5, 0},
	"THROW":     {Op2, 0x1C, 5, 0},

	// 1OP (numbers 128..143)
	"JZ":         {Op1, 0x80, 3, 0},
	"GET_SIBLING": {Op1, 0x81, 3, 0},
	"GET_CHILD":   {Op1, 0x82, 3, 0},
	"GET_PARENT":  {Op1, 0x83, 3, 0},
	"GET_PROP_LEN": {Op1, 0x84, 3, 0},
	"INC":        {Op1, 0x85, 3, 0},
	"DEC":        {Op1, 0x86, 3, 0},
	"PRINT_ADDR": {Op1, 0x87, 3, 0},
	"CALL_1S":    {Op1, 0x88, 4, 0},
	"REMOVE_OBJ": {Op1, 0x89, 3, 0},
	"PRINT_OBJ":  {Op1, 0x8A, 3, 0},
	"RET":        {Op1, 0x8B, 3, 0},
	"JUMP":       {Op1, 0x8C, 3, 0},
	"PRINT_PADDR": {Op1, 0x8D, 3, 0},
	"LOAD":       {Op1, 0x8E, 3, 0},
	"NOT_1OP":    {Op1, 0x8F, 3, 4},
	"CALL_1N":    {Op1, 0x8F, 5, 0},

	// 0OP (numbers 176..191)
	"RTRUE":       {Op0, 0xB0, 3, 0},
	"RFALSE":      {Op0, 0xB1, 3, 0},
	"PRINT":       {Op0, 0xB2, 3, 0},
	"PRINT_RET":   {Op0, 0xB3, 3, 0},
	"NOP":         {Op0, 0xB4, 3, 0},
	"SAVE_0OP":    {Op0, 0xB5, 3, 3},
	"RESTORE_0OP": {Op0, 0xB6, 3, 3},
	"RESTART":     {Op0, 0xB7, 3, 0},
	"RET_POPPED":  {Op0, 0xB8, 3, 0},
	"POP":         {Op0, 0xB9, 3, 4},
	"CATCH":       {Op0, 0xB9, 5, 0},
	"QUIT":        {Op0, 0xBA, 3, 0},
	"NEW_LINE":    {Op0, 0xBB, 3, 0},
	"SHOW_STATUS": {Op0, 0xBC, 3, 3},
	"VERIFY":      {Op0, 0xBD, 3, 0},
	"PIRACY":      {Op0, 0xBF, 5, 0},

	// VAR (numbers 224..255, plus storew/storeb/etc.)
	"CALL":        {OpVar, 0xE0, 3, 0}, // call_vs; CALL is ZIL's classic spelling
	"STOREW":      {OpVar, 0xE1, 3, 0},
	"STOREB":      {OpVar, 0xE2, 3, 0},
	"PUT_PROP":    {OpVar, 0xE3, 3, 0},
	"SREAD":       {OpVar, 0xE4, 3, 3},
	"AREAD":       {OpVar, 0xE4, 5, 0},
	"PRINT_CHAR":  {OpVar, 0xE5, 3, 0},
	"PRINT_NUM":   {OpVar, 0xE6, 3, 0},
	"RANDOM":      {OpVar, 0xE7, 3, 0},
	"PUSH":        {OpVar, 0xE8, 3, 0},
	"PULL":        {OpVar, 0xE9, 3, 0},
	"SPLIT_WINDOW": {OpVar, 0xEA, 3, 0},
	"SET_WINDOW":   {OpVar, 0xEB, 3, 0},
	"CALL_VS2":     {OpVar, 0xEC, 4, 0},
	"ERASE_WINDOW": {OpVar, 0xED, 4, 0},
	"ERASE_LINE":   {OpVar, 0xEE, 4, 0},
	"SET_CURSOR":   {OpVar, 0xEF, 4, 0},
	"GET_CURSOR":   {OpVar, 0xF0, 4, 0},
	"SET_TEXT_STYLE": {OpVar, 0xF1, 4, 0},
	"BUFFER_MODE":  {OpVar, 0xF2, 4, 0},
	"OUTPUT_STREAM": {OpVar, 0xF3, 3, 0},
	"INPUT_STREAM":  {OpVar, 0xF4, 3, 0},
	"SOUND_EFFECT":  {OpVar, 0xF5, 3, 0},
	"READ_CHAR":     {OpVar, 0xF6, 4, 0},
	"SCAN_TABLE":    {OpVar, 0xF7, 4, 0},
	"NOT_VAR":       {OpVar, 0xF8, 5, 0},
	"CALL_VN":       {OpVar, 0xF9, 5, 0},
	"CALL_VN2":      {OpVar, 0xFA, 5, 0},
	"TOKENISE":      {OpVar, 0xFB, 5, 0},
	"ENCODE_TEXT":   {OpVar, 0xFC, 5, 0},
	"COPY_TABLE":    {OpVar, 0xFD, 5, 0},
	"PRINT_TABLE":   {OpVar, 0xFE, 5, 0},
	"CHECK_ARG_COUNT": {OpVar, 0xFF, 5, 0},

	// EXT (V5+; extended form, opcode byte 190 then a second opcode byte)
	"SAVE_EXT":       {OpExt, 0x00, 5, 0},
	"RESTORE_EXT":    {OpExt, 0x01, 5, 0},
	"LOG_SHIFT":      {OpExt, 0x02, 5, 0},
	"ART_SHIFT":      {OpExt, 0x03, 5, 0},
	"SET_FONT":       {OpExt, 0x04, 5, 0},
	"SAVE_UNDO":      {OpExt, 0x09, 5, 0},
	"RESTORE_UNDO":   {OpExt, 0x0A, 5, 0},
	"PRINT_UNICODE":  {OpExt, 0x0B, 5, 0},
	"CHECK_UNICODE":  {OpExt, 0x0C, 5, 0},
}

// Lookup resolves mnemonic op for version, returning an error if the
// opcode doesn't exist at all or isn't available at that version
// (spec §6 "version-specific opcode availability").
func Lookup(op ir.Op, version int) (opcodeInfo, error) {
	info, ok := opcodeTable[op]
	if !ok {
		return opcodeInfo{}, fmt.Errorf("unknown opcode %q", op)
	}
	if version < info.MinVersion || (info.MaxVersion != 0 && version > info.MaxVersion) {
		return opcodeInfo{}, fmt.Errorf("opcode %q is not available on Z-machine version %d", op, version)
	}
	return info, nil
}

// Available reports whether op exists at all on version, without
// erroring — used by the macro/front-end layer to downgrade or warn
// instead of hard-failing (spec §7 "opcode degradation" warnings).
func Available(op ir.Op, version int) bool {
	_, err := Lookup(op, version)
	return err == nil
}
