package classifier

import (
	"regexp"
	"slices"
	"strings"
)

var (
	tokenPattern = regexp.MustCompile(`[a-z0-9+#]+(?:[.\-][a-z0-9+#]+)*`)
	yearPattern  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

var stopWords = setOf(
	"a", "about", "above", "after", "again", "all", "am", "an", "and", "any", "are", "as", "at",
	"be", "been", "before", "being", "below", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during",
	"each", "few", "for", "from", "further", "had", "has", "have", "having", "he", "her", "here",
	"hers", "him", "his", "how", "i", "if", "in", "into", "is", "it", "its",
	"just", "me", "more", "most", "my", "no", "nor", "not", "now",
	"of", "off", "on", "once", "only", "or", "other", "our", "ours", "out", "over", "own",
	"please", "same", "she", "should", "so", "some", "such",
	"than", "that", "the", "their", "them", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who", "whom", "why",
	"will", "with", "would", "you", "your", "yours",
)

// portfolioWords raise confidence when present.
var portfolioWords = setOf(
	"project", "projects", "experience", "job", "jobs", "work", "worked", "certificate",
	"certificates", "certification", "skill", "skills", "education", "contact", "email",
	"phone", "github", "linkedin", "website", "portfolio", "resume",
	"technology", "technologies", "framework", "language", "tool", "database", "api",
)

// technologies maps lowercase tokens to their canonical spelling.
var technologies = map[string]string{
	"python":     "Python",
	"go":         "Go",
	"golang":     "Go",
	"javascript": "JavaScript",
	"typescript": "TypeScript",
	"react":      "React",
	"vue":        "Vue",
	"angular":    "Angular",
	"node":       "Node.js",
	"node.js":    "Node.js",
	"express":    "Express",
	"fastapi":    "FastAPI",
	"django":     "Django",
	"flask":      "Flask",
	"postgresql": "PostgreSQL",
	"postgres":   "PostgreSQL",
	"mysql":      "MySQL",
	"mongodb":    "MongoDB",
	"redis":      "Redis",
	"docker":     "Docker",
	"kubernetes": "Kubernetes",
	"k8s":        "Kubernetes",
	"aws":        "AWS",
	"gcp":        "GCP",
	"azure":      "Azure",
	"tensorflow": "TensorFlow",
	"pytorch":    "PyTorch",
	"scikit":     "scikit-learn",
	"pandas":     "pandas",
	"numpy":      "NumPy",
	"java":       "Java",
	"c++":        "C++",
	"c#":         "C#",
	"rust":       "Rust",
	"terraform":  "Terraform",
}

// Topic is the portfolio area a message is about.
type Topic string

const (
	TopicProject     Topic = "project"
	TopicExperience  Topic = "experience"
	TopicCertificate Topic = "certificate"
	TopicSkill       Topic = "skill"
	TopicContact     Topic = "contact"
	TopicGeneral     Topic = "general"
)

var topicMarkers = []struct {
	topic   Topic
	markers []string
}{
	{TopicProject, []string{"project", "portfolio", "application", "built"}},
	{TopicExperience, []string{"experience", "job", "career", "work", "employ"}},
	{TopicCertificate, []string{"certificat", "course", "degree"}},
	{TopicSkill, []string{"skill", "technolog", "language", "framework", "stack"}},
	{TopicContact, []string{"contact", "email", "phone", "reach", "hire"}},
}

func tokenize(lower string) []string {
	return tokenPattern.FindAllString(lower, -1)
}

// keywords keeps non-stop-word tokens of two or more characters, de-duplicated
// in order of appearance.
func keywords(tokens []string) []string {
	out := []string{}
	for _, tok := range tokens {
		if len(tok) < 2 && technologies[tok] == "" {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if !slices.Contains(out, tok) {
			out = append(out, tok)
		}
	}
	return out
}

func portfolioHits(tokens []string) int {
	n := 0
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if _, ok := portfolioWords[tok]; !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		n++
	}
	return n
}

// entities returns technology names, years and e-mail addresses found in the
// message, de-duplicated, grouped in that order.
func entities(message string, tokens []string) []string {
	out := []string{}
	add := func(e string) {
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}

	for _, tok := range tokens {
		if name, ok := technologies[tok]; ok {
			add(name)
		}
	}

	for _, y := range yearPattern.FindAllString(message, -1) {
		add(y)
	}

	for _, e := range emailPattern.FindAllString(message, -1) {
		add(e)
	}

	return out
}

func topicOf(lower string) Topic {
	for _, tm := range topicMarkers {
		for _, m := range tm.markers {
			if strings.Contains(lower, m) {
				return tm.topic
			}
		}
	}
	return TopicGeneral
}

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
