package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/internal/engine"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
)

// Fallback answers used when the CMS has nothing or cannot be reached.
const (
	ProfileUnavailable      = "Profile information not available."
	NoSkills                = "No skills found."
	NoProjects              = "No projects found."
	NoExperience            = "No experience found."
	AvailabilityUnavailable = "Availability information not available."
)

const (
	profileQuery = `*[_id == "singleton-profile" && !(_id in path("drafts.**"))][0]{
  firstName, lastName, headline, shortBio, email, phone, location,
  availability, yearsOfExperience, socialLinks
}`
	profileByTypeQuery = `*[_type == "profile" && !(_id in path("drafts.**"))][0]`

	skillsQuery = `*[_type == "skill" && !(_id in path("drafts.**"))%s] | order(percentage desc) {
  name, category, proficiency, percentage, yearsOfExperience
}`

	projectsQuery = `*[_type == "project" && !(_id in path("drafts.**"))%s] | order(order asc) {
  title, tagline, "technologies": technologies[]->name, githubUrl, liveUrl
}`

	experienceQuery = `*[_type == "experience" && !(_id in path("drafts.**"))%s] | order(startDate desc) {
  company, position, startDate, endDate, current,
  "technologies": technologies[]->name, responsibilities, achievements
}`

	availabilityQuery = `*[_id == "singleton-profile" || (_type == "profile" && !(_id in path("drafts.**")))][0]{
  availability, email,
  "services": *[_type == "service" && !(_id in path("drafts.**"))] | order(order asc){
    title, shortDescription, pricing
  }
}`
)

// Catalog answers profile questions from a Source.
type Catalog struct {
	source Source
	logger *logger.Logger
}

// NewCatalog creates a Catalog.
func NewCatalog(source Source, log *logger.Logger) *Catalog {
	return &Catalog{source: source, logger: log}
}

// query runs a query and treats failures as empty results. The engine
// must answer "I don't know" rather than see a transport error.
func (c *Catalog) query(ctx context.Context, tool, query string, params map[string]any, fresh bool) (gjson.Result, bool) {
	raw, err := c.source.Query(ctx, query, params, fresh)
	if err != nil {
		c.logger.Warn("CMS query failed", zap.String("tool", tool), zap.Error(err))
		return gjson.Result{}, false
	}
	if isEmpty(raw) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(raw), true
}

// Profile returns the formatted owner profile, or ProfileUnavailable.
func (c *Catalog) Profile(ctx context.Context) string {
	result, ok := c.query(ctx, "get_profile", profileQuery, nil, true)
	if !ok {
		result, ok = c.query(ctx, "get_profile", profileByTypeQuery, nil, true)
	}
	if !ok {
		return ProfileUnavailable
	}

	name := strings.TrimSpace(result.Get("firstName").String() + " " + result.Get("lastName").String())
	lines := []string{
		"Profile Information:",
		"Name: " + name,
		"Headline: " + field(result, "headline", "N/A"),
		"Bio: " + field(result, "shortBio", "N/A"),
		"Location: " + field(result, "location", "N/A"),
		"Experience: " + field(result, "yearsOfExperience", "0") + " years",
		"Availability: " + field(result, "availability", "N/A"),
		"Email: " + field(result, "email", "N/A"),
		"Phone: " + field(result, "phone", "N/A"),
	}
	return strings.Join(lines, "\n")
}

// Skills lists skills, optionally limited to one category.
func (c *Catalog) Skills(ctx context.Context, category string) string {
	filter, params := "", map[string]any(nil)
	if category != "" {
		filter, params = " && category == $category", map[string]any{"category": category}
	}

	result, ok := c.query(ctx, "get_skills", fmt.Sprintf(skillsQuery, filter), params, false)
	skills := result.Array()
	if !ok || len(skills) == 0 {
		return NoSkills
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Skills (%d total):\n\n", len(skills))
	for _, s := range skills {
		fmt.Fprintf(&b, "• %s (%s): %s (%s%%), %s years\n",
			s.Get("name").String(),
			field(s, "category", "N/A"),
			field(s, "proficiency", "N/A"),
			field(s, "percentage", "0"),
			field(s, "yearsOfExperience", "0"),
		)
	}
	return strings.TrimSpace(b.String())
}

// Projects lists portfolio projects.
func (c *Catalog) Projects(ctx context.Context, featuredOnly bool) string {
	filter := ""
	if featuredOnly {
		filter = " && featured == true"
	}

	result, ok := c.query(ctx, "get_projects", fmt.Sprintf(projectsQuery, filter), nil, false)
	projects := result.Array()
	if !ok || len(projects) == 0 {
		return NoProjects
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Projects (%d total):\n\n", len(projects))
	for _, p := range projects {
		fmt.Fprintf(&b, "**%s**\n%s\n", p.Get("title").String(), field(p, "tagline", "N/A"))
		fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(stringList(p.Get("technologies")), ", "))
		if v := p.Get("githubUrl").String(); v != "" {
			fmt.Fprintf(&b, "GitHub: %s\n", v)
		}
		if v := p.Get("liveUrl").String(); v != "" {
			fmt.Fprintf(&b, "Live: %s\n", v)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Experience lists work history, optionally matching a company or
// position prefix.
func (c *Catalog) Experience(ctx context.Context, search string) string {
	filter, params := "", map[string]any(nil)
	if search != "" {
		filter = " && (company match $pattern || position match $pattern)"
		params = map[string]any{"pattern": search + "*"}
	}

	result, ok := c.query(ctx, "search_experience", fmt.Sprintf(experienceQuery, filter), params, false)
	jobs := result.Array()
	if !ok || len(jobs) == 0 {
		return NoExperience
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Work Experience (%d positions):\n\n", len(jobs))
	for _, job := range jobs {
		end := field(job, "endDate", "N/A")
		if job.Get("current").Bool() {
			end = "Present"
		}
		fmt.Fprintf(&b, "**%s at %s**\n", job.Get("position").String(), job.Get("company").String())
		fmt.Fprintf(&b, "%s - %s\n", field(job, "startDate", "N/A"), end)

		if techs := stringList(job.Get("technologies")); len(techs) > 0 {
			fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(techs, ", "))
		}
		if items := stringList(job.Get("responsibilities")); len(items) > 0 {
			b.WriteString("Responsibilities:\n")
			for _, r := range items {
				fmt.Fprintf(&b, "  • %s\n", r)
			}
		}
		if items := stringList(job.Get("achievements")); len(items) > 0 {
			b.WriteString("Key Achievements:\n")
			for _, a := range items {
				fmt.Fprintf(&b, "  • %s\n", a)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Availability reports availability and offered services.
func (c *Catalog) Availability(ctx context.Context) string {
	result, ok := c.query(ctx, "check_availability", availabilityQuery, nil, false)
	if !ok {
		return AvailabilityUnavailable
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Availability Status: %s\n\n", field(result, "availability", "Not specified"))

	if services := result.Get("services").Array(); len(services) > 0 {
		b.WriteString("Services Offered:\n")
		for _, s := range services {
			price := "Contact for pricing"
			if start := s.Get("pricing.startingPrice"); start.Exists() && start.String() != "" && start.String() != "0" {
				price = "From $" + start.String()
				if kind := s.Get("pricing.priceType").String(); kind != "" {
					price += " (" + kind + ")"
				}
			}
			fmt.Fprintf(&b, "• %s: %s\n", s.Get("title").String(), price)
			if desc := s.Get("shortDescription").String(); desc != "" {
				fmt.Fprintf(&b, "  %s\n", desc)
			}
		}
	}

	fmt.Fprintf(&b, "\nContact: %s", field(result, "email", "N/A"))
	return strings.TrimSpace(b.String())
}

// Tools exposes the catalog to the engine.
func (c *Catalog) Tools() []engine.Tool {
	return []engine.Tool{
		{
			Name:        "get_profile",
			Description: "Get complete profile information including name, bio, and contact details.",
			Parameters:  objectSchema(nil),
			Call: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return c.Profile(ctx), nil
			},
		},
		{
			Name:        "get_skills",
			Description: "Get skills with proficiency levels, optionally filtered by category (frontend, backend, devops, ai/ml, database).",
			Parameters: objectSchema(map[string]any{
				"category": map[string]any{"type": "string", "description": "Optional category filter"},
			}),
			Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Category string `json:"category"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
				return c.Skills(ctx, args.Category), nil
			},
		},
		{
			Name:        "get_projects",
			Description: "Get portfolio projects with descriptions and technologies used.",
			Parameters: objectSchema(map[string]any{
				"featured_only": map[string]any{"type": "boolean", "description": "Return only featured projects"},
			}),
			Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					FeaturedOnly bool `json:"featured_only"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
				return c.Projects(ctx, args.FeaturedOnly), nil
			},
		},
		{
			Name:        "search_experience",
			Description: "Search work experience by company name or position.",
			Parameters: objectSchema(map[string]any{
				"query": map[string]any{"type": "string", "description": "Search term for company or position"},
			}),
			Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Query string `json:"query"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
				return c.Experience(ctx, args.Query), nil
			},
		},
		{
			Name:        "check_availability",
			Description: "Check if available for work, projects, or consultations.",
			Parameters:  objectSchema(nil),
			Call: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return c.Availability(ctx), nil
			},
		},
	}
}

func objectSchema(properties map[string]any) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	return map[string]any{"type": "object", "properties": properties}
}

// field returns the string form of key, or def when missing or empty.
func field(r gjson.Result, key, def string) string {
	v := r.Get(key)
	if !v.Exists() || v.Type == gjson.Null || v.String() == "" {
		return def
	}
	return v.String()
}

// stringList flattens a JSON array of strings.
func stringList(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
