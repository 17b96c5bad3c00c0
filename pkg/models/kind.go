package models

// EntityKind is the closed union over entity types. ActionKind carries a
// single prompt and has no children; CompositeKind carries plan steps.
// Validation and plan drawing switch on it rather than on the type string.
type EntityKind interface {
	entityKind()
	Type() EntityType
}

type ActionKind struct {
	PromptTemplate string
	LogicGate      *LogicGate
}

func (ActionKind) entityKind() {}

func (ActionKind) Type() EntityType { return EntityTypeAction }

type CompositeKind struct {
	EntityType EntityType
	// Planning is nil when the entity has no planning section.
	Planning *Planning
	Steps    []Step
}

func (CompositeKind) entityKind() {}

func (k CompositeKind) Type() EntityType { return k.EntityType }

// Kind projects the flat wire shape onto the union. Unknown types have no
// kind and yield nil.
func (e *Entity) Kind() EntityKind {
	switch {
	case e.Type == EntityTypeAction:
		kind := ActionKind{LogicGate: e.LogicGate}
		for _, step := range e.Steps() {
			if step.Target.PromptTemplate != "" {
				kind.PromptTemplate = step.Target.PromptTemplate

				break
			}
		}

		return kind
	case e.Type.IsComposite():
		return CompositeKind{EntityType: e.Type, Planning: e.Planning, Steps: e.Steps()}
	default:
		return nil
	}
}

// IsComposite reports whether the type may have a plan with children.
func (t EntityType) IsComposite() bool {
	return t == EntityTypeSkill || t == EntityTypeAgent || t == EntityTypeProcess
}
