package activities

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/autoshop-ai/orchestrator/internal/models"
)

const defaultDecompositionPrompt = `You are an automotive research planner for a repair shop.
Break the question below into focused, independently researchable sub-questions.
Tag each sub-question with exactly one category:
- vehicle_systems: how the affected vehicle systems and components work and fail
- compliance: emissions, safety, and regulatory requirements that apply
- oem_data: manufacturer specifications, TSBs, part numbers, and tolerances
- community_forums: real-world fixes and symptoms reported by technicians and owners

Question: {question}

Respond with ONLY a JSON array, no prose:
[{"question": "...", "category": "vehicle_systems"}, ...]`

var defaultCategoryPrompts = map[models.Category]string{
	models.CategoryVehicleSystems: `You are a vehicle systems specialist. Explain the engineering behind the
sub-question below: the components involved, how they operate, common failure
modes, and diagnostic procedures. Be specific to the vehicle in the original
question where possible.

Original question: {original_question}
Sub-question: {question}`,

	models.CategoryCompliance: `You are an automotive compliance and regulatory specialist. Research the
emissions, safety, and inspection requirements relevant to the sub-question
below, including jurisdictional differences a repair shop must account for.

Original question: {original_question}
Sub-question: {question}`,

	models.CategoryOEMData: `You are an OEM specification specialist. Research the manufacturer data
relevant to the sub-question below: factory specifications, tolerances,
part numbers, service intervals, and technical service bulletins.

Original question: {original_question}
Sub-question: {question}`,

	models.CategoryCommunityForums: `You are a specialist in community-reported automotive fixes. Research what
technicians and owners report about the sub-question below: recurring symptoms,
fixes that worked, fixes that did not, and cost expectations.

Original question: {original_question}
Sub-question: {question}`,
}

const defaultSynthesisPrompt = `You are an automotive research editor. Combine the category findings below into
one integrated, cross-referenced repair research report in markdown. Reconcile
conflicts between sources, call out manufacturer data that confirms or refutes
community reports, and end with recommended next steps for the technician.

Original question: {question}

## Vehicle systems findings
{vehicle_systems}

## Compliance findings
{compliance}

## OEM data findings
{oem_data}

## Community forum findings
{community_forums}`

// noFindingsPlaceholder is substituted into the synthesis prompt for a
// category whose specialist produced no research.
const noFindingsPlaceholder = "No research was performed for this category."

// promptsFile is the YAML shape for on-disk prompt overrides.
type promptsFile struct {
	Decomposition string            `yaml:"decomposition"`
	Categories    map[string]string `yaml:"categories"`
	Synthesis     string            `yaml:"synthesis"`
}

// Prompts holds the instruction templates driving the pipeline. Defaults are
// compiled in; a YAML file can override individual templates and is hot-swapped
// by the fsnotify watcher.
type Prompts struct {
	mu            sync.RWMutex
	decomposition string
	categories    map[models.Category]string
	synthesis     string
}

// NewPrompts returns the built-in prompt set.
func NewPrompts() *Prompts {
	cats := make(map[models.Category]string, len(defaultCategoryPrompts))
	for k, v := range defaultCategoryPrompts {
		cats[k] = v
	}
	return &Prompts{
		decomposition: defaultDecompositionPrompt,
		categories:    cats,
		synthesis:     defaultSynthesisPrompt,
	}
}

// LoadFile merges template overrides from a YAML file. Unknown category keys
// are rejected so a typo cannot silently orphan a specialist.
func (p *Prompts) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prompts file: %w", err)
	}
	var f promptsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse prompts file: %w", err)
	}
	for name := range f.Categories {
		if !models.Category(name).Valid() {
			return fmt.Errorf("prompts file: unknown category %q", name)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if f.Decomposition != "" {
		p.decomposition = f.Decomposition
	}
	for name, tmpl := range f.Categories {
		if tmpl != "" {
			p.categories[models.Category(name)] = tmpl
		}
	}
	if f.Synthesis != "" {
		p.synthesis = f.Synthesis
	}
	return nil
}

// Decomposition returns the decomposition template.
func (p *Prompts) Decomposition() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.decomposition
}

// Category returns the specialist template for c.
func (p *Prompts) Category(c models.Category) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.categories[c]
}

// Synthesis returns the synthesis template.
func (p *Prompts) Synthesis() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.synthesis
}
