package ir

// FieldType names the schema type of a payload or argument field.
type FieldType string

const (
	TypeMoney      FieldType = "Money"
	TypeDate       FieldType = "Date"
	TypeText       FieldType = "Text"
	TypeParty      FieldType = "Party"
	TypeInt        FieldType = "Int"
	TypeBool       FieldType = "Bool"
	TypeRecord     FieldType = "Record"
	TypeContractID FieldType = "ContractId"
)

// ValidFieldTypes lists the accepted scalar and composite types.
var ValidFieldTypes = map[FieldType]bool{
	TypeMoney:      true,
	TypeDate:       true,
	TypeText:       true,
	TypeParty:      true,
	TypeInt:        true,
	TypeBool:       true,
	TypeRecord:     true,
	TypeContractID: true,
}

// FieldSpec declares one named, typed field. Record fields carry nested Fields.
type FieldSpec struct {
	Name   string      `json:"name"`
	Type   FieldType   `json:"type"`
	Fields []FieldSpec `json:"fields,omitempty"`
}

// ContractRef declares a ContractId argument whose contract a choice also consumes.
// Controller names the Party field of the referenced contract that must equal the actor.
type ContractRef struct {
	Template   string `json:"template"`
	Controller string `json:"controller"`
}

// ChoiceSpec declares a choice on a template. A choice consumes the contract
// it is exercised on unless NonConsuming is set; contracts named in Consumes
// are consumed either way.
type ChoiceSpec struct {
	Name         string                 `json:"name"`
	Controller   string                 `json:"controller"`
	NonConsuming bool                   `json:"nonconsuming,omitempty"`
	Args         []FieldSpec            `json:"args"`
	Consumes     map[string]ContractRef `json:"consumes,omitempty"`
}

// TemplateSpec is the static declaration of a template: its payload schema,
// which Party fields are signatories and observers, and its choices.
type TemplateSpec struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Fields      []FieldSpec  `json:"fields"`
	Signatories []string     `json:"signatories"`
	Observers   []string     `json:"observers"`
	Choices     []ChoiceSpec `json:"choices"`
}

// Field returns the top-level field with the given name.
func (t *TemplateSpec) Field(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Choice returns the choice with the given name.
func (t *TemplateSpec) Choice(name string) (ChoiceSpec, bool) {
	for _, c := range t.Choices {
		if c.Name == name {
			return c, true
		}
	}
	return ChoiceSpec{}, false
}

// Arg returns the argument with the given name.
func (c *ChoiceSpec) Arg(name string) (FieldSpec, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a, true
		}
	}
	return FieldSpec{}, false
}

func (t TemplateSpec) record() Record {
	choices := make(List, len(t.Choices))
	for i, c := range t.Choices {
		consumes := Record{}
		for arg, ref := range c.Consumes {
			consumes[arg] = Record{"template": Text(ref.Template), "controller": Text(ref.Controller)}
		}
		choices[i] = Record{
			"name":         Text(c.Name),
			"controller":   Text(c.Controller),
			"nonconsuming": Bool(c.NonConsuming),
			"args":         fieldsList(c.Args),
			"consumes":     consumes,
		}
	}
	return Record{
		"name":        Text(t.Name),
		"fields":      fieldsList(t.Fields),
		"signatories": textList(t.Signatories),
		"observers":   textList(t.Observers),
		"choices":     choices,
	}
}

func fieldsList(fields []FieldSpec) List {
	out := make(List, len(fields))
	for i, f := range fields {
		out[i] = Record{
			"name":   Text(f.Name),
			"type":   Text(f.Type),
			"fields": fieldsList(f.Fields),
		}
	}
	return out
}

func textList(ss []string) List {
	out := make(List, len(ss))
	for i, s := range ss {
		out[i] = Text(s)
	}
	return out
}
