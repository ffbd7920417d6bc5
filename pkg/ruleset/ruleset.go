// Package ruleset loads optional per-site rewrite rules from YAML files and
// applies them to HTML the proxy has already re-branded.
package ruleset

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"
)

type Regex struct {
	Match   string `yaml:"match"`
	Replace string `yaml:"replace"`

	re *regexp.Regexp
}

type KV struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Headers overrides what is sent upstream for matching requests. "none"
// removes X-Forwarded-For or Referer entirely. CSP, when set, is served in
// place of the policy the proxy strips.
type Headers struct {
	UserAgent     string `yaml:"user-agent,omitempty"`
	XForwardedFor string `yaml:"x-forwarded-for,omitempty"`
	Referer       string `yaml:"referer,omitempty"`
	Cookie        string `yaml:"cookie,omitempty"`
	CSP           string `yaml:"content-security-policy,omitempty"`
}

// URLMods rewrites the upstream request URL. A query entry with an empty
// Value deletes the key.
type URLMods struct {
	Path  []Regex `yaml:"path,omitempty"`
	Query []KV    `yaml:"query,omitempty"`
}

type Injection struct {
	Position string `yaml:"position"`
	Append   string `yaml:"append,omitempty"`
	Prepend  string `yaml:"prepend,omitempty"`
	Replace  string `yaml:"replace,omitempty"`
}

// Rule applies to requests whose caller-facing host matches one of Domains
// (or any host when empty) and whose path starts with one of Paths (or any
// path when empty).
type Rule struct {
	Domain     string      `yaml:"domain,omitempty"`
	Domains    []string    `yaml:"domains,omitempty"`
	Paths      []string    `yaml:"paths,omitempty"`
	Headers    Headers     `yaml:"headers,omitempty"`
	RegexRules []Regex     `yaml:"regexRules,omitempty"`
	URLMods    URLMods     `yaml:"urlMods,omitempty"`
	Injections []Injection `yaml:"injections,omitempty"`
}

type RuleSet []Rule

// Load reads every .yml/.yaml file under the ";"-separated list of paths.
// An empty list yields an empty RuleSet.
func Load(rulePaths string) (RuleSet, error) {
	if rulePaths == "" {
		return RuleSet{}, nil
	}

	var ruleSet RuleSet
	for _, rulePath := range strings.Split(rulePaths, ";") {
		rulePath = strings.TrimSpace(rulePath)
		if rulePath == "" {
			continue
		}

		err := filepath.Walk(rulePath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !(strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")) {
				return nil
			}
			rules, err := loadFile(path)
			if err != nil {
				return err
			}
			ruleSet = append(ruleSet, rules...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("load rules from %q: %w", rulePath, err)
		}
	}

	slog.Info("loaded rewrite rules", "rules", ruleSet.Count(), "domains", len(ruleSet.Domains()))
	return ruleSet, nil
}

func loadFile(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %q: %w", path, err)
	}

	var rules RuleSet
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("syntax error in rules file %q: %w", path, err)
	}

	for i := range rules {
		for _, set := range [][]Regex{rules[i].RegexRules, rules[i].URLMods.Path} {
			for j := range set {
				if set[j].re, err = regexp.Compile(set[j].Match); err != nil {
					return nil, fmt.Errorf("rules file %q: bad regex %q: %w", path, set[j].Match, err)
				}
			}
		}
	}
	return rules, nil
}

// Domains lists every domain named by the rules.
func (rs RuleSet) Domains() []string {
	var domains []string
	for _, rule := range rs {
		if rule.Domain != "" {
			domains = append(domains, rule.Domain)
		}
		domains = append(domains, rule.Domains...)
	}
	return domains
}

func (rs RuleSet) Count() int {
	return len(rs)
}

// Match returns the first rule for host and path.
func (rs RuleSet) Match(host, path string) (Rule, bool) {
	for _, rule := range rs {
		if rule.matchesHost(host) && rule.matchesPath(path) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (r Rule) matchesHost(host string) bool {
	domains := r.Domains
	if r.Domain != "" {
		domains = append([]string{r.Domain}, domains...)
	}
	if len(domains) == 0 {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (r Rule) matchesPath(path string) bool {
	if len(r.Paths) == 0 {
		return true
	}
	for _, p := range r.Paths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (rx Regex) replace(s string) (string, error) {
	re := rx.re
	if re == nil {
		var err error
		if re, err = regexp.Compile(rx.Match); err != nil {
			return "", fmt.Errorf("bad regex %q: %w", rx.Match, err)
		}
	}
	return re.ReplaceAllString(s, rx.Replace), nil
}

// RewritePath runs the urlMods path regexes over path in order.
func (r Rule) RewritePath(path string) (string, error) {
	var err error
	for _, rx := range r.URLMods.Path {
		if path, err = rx.replace(path); err != nil {
			return "", err
		}
	}
	return path, nil
}

// Apply runs the regex rules and then the DOM injections over body.
func (r Rule) Apply(body string) (string, error) {
	var err error
	for _, rx := range r.RegexRules {
		if body, err = rx.replace(body); err != nil {
			return "", err
		}
	}

	if len(r.Injections) == 0 {
		return body, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html for injection: %w", err)
	}
	for _, inj := range r.Injections {
		sel := doc.Find(inj.Position)
		if inj.Replace != "" {
			sel.ReplaceWithHtml(inj.Replace)
		}
		if inj.Append != "" {
			sel.AppendHtml(inj.Append)
		}
		if inj.Prepend != "" {
			sel.PrependHtml(inj.Prepend)
		}
	}
	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html after injection: %w", err)
	}
	return out, nil
}
