package models

// CType is a C primitive type recognized by the harness generator.
// Anything outside this set is rejected at catalog load time.
type CType string

const (
	TypeInt          CType = "int"
	TypeLong         CType = "long"
	TypeShort        CType = "short"
	TypeUnsignedInt  CType = "unsigned int"
	TypeUnsignedLong CType = "unsigned long"
	TypeSizeT        CType = "size_t"
	TypeFloat        CType = "float"
	TypeDouble       CType = "double"
	TypeChar         CType = "char"
	TypeString       CType = "char*"
	TypeIntPtr       CType = "int*"
	TypeVoid         CType = "void"
)

// ValidParamType reports whether t may appear as a parameter type.
func ValidParamType(t CType) bool {
	switch t {
	case TypeInt, TypeLong, TypeShort, TypeUnsignedInt, TypeUnsignedLong,
		TypeSizeT, TypeFloat, TypeDouble, TypeChar, TypeString, TypeIntPtr:
		return true
	}
	return false
}

// ValidReturnType reports whether t may appear as a return type.
func ValidReturnType(t CType) bool {
	return t == TypeVoid || (ValidParamType(t) && t != TypeIntPtr)
}

// QuestMode selects how submitted code is invoked.
type QuestMode string

const (
	// ModeFunction wraps the player's function in a generated main()
	// that calls it with the test case inputs as C literals.
	ModeFunction QuestMode = "function"
	// ModeProgram treats the submission as a full program; the test case
	// input is piped to stdin verbatim.
	ModeProgram QuestMode = "program"
)

// Parameter is one typed parameter in a quest function signature.
type Parameter struct {
	Name string `yaml:"name" json:"name"`
	Type CType  `yaml:"type" json:"type"`
}

// FunctionSignature describes the function a player must implement.
type FunctionSignature struct {
	Name       string      `yaml:"name" json:"name"`
	ReturnType CType       `yaml:"return_type" json:"return_type"`
	Params     []Parameter `yaml:"params" json:"params,omitempty"`
}

// TestCase is one input/expected-output pair for a quest.
// For function quests Input holds one value per signature parameter;
// for program quests Stdin is piped to the submission verbatim.
// Expected is compared exact-string after trailing-newline trimming.
type TestCase struct {
	Input    []any  `yaml:"input" json:"input,omitempty"`
	Stdin    string `yaml:"stdin" json:"stdin,omitempty"`
	Expected string `yaml:"expected" json:"expected"`
	Sample   bool   `yaml:"sample" json:"sample"`
}

// QuestDefinition is a single function-implementation challenge.
// Immutable after catalog load.
type QuestDefinition struct {
	ID        string             `yaml:"id" json:"id"`
	LevelID   string             `yaml:"-" json:"level_id"`
	Order     int                `yaml:"order" json:"order"`
	Title     string             `yaml:"title" json:"title"`
	Mode      QuestMode          `yaml:"mode" json:"mode"`
	Signature *FunctionSignature `yaml:"signature" json:"signature,omitempty"`
	Template  string             `yaml:"template" json:"template"`
	TestCases []TestCase         `yaml:"test_cases" json:"-"`
	Hints     []string           `yaml:"hints" json:"-"`
	XPReward  int                `yaml:"xp_reward" json:"xp_reward"`
}

// LevelDefinition is an ordered group of quests sharing a concept.
// Immutable after catalog load. Quest XP rewards sum to XPReward.
type LevelDefinition struct {
	ID       string             `yaml:"id" json:"id"`
	Title    string             `yaml:"title" json:"title"`
	Concept  string             `yaml:"concept" json:"concept"`
	XPReward int                `yaml:"xp_reward" json:"xp_reward"`
	World    string             `yaml:"world" json:"world,omitempty"`
	Quests   []*QuestDefinition `yaml:"quests" json:"quests"`
}
