package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Params are the write-file parameters as supplied by a caller. Empty or
// unset fields fall through to the environment and then to defaults.
type Params struct {
	URL             string `yaml:"url" json:"url"`
	Verify          Bool   `yaml:"verify" json:"verify"`
	AuthType        string `yaml:"authtype" json:"authtype"`
	Token           string `yaml:"token" json:"token"`
	Username        string `yaml:"username" json:"username"`
	Password        string `yaml:"password" json:"password"`
	RoleID          string `yaml:"role_id" json:"role_id"`
	SecretID        string `yaml:"secret_id" json:"secret_id"`
	Namespace       string `yaml:"namespace" json:"namespace"`
	LoginMountPoint string `yaml:"login_mount_point" json:"login_mount_point"`
	CACert          string `yaml:"ca_cert" json:"ca_cert"`
	CAPath          string `yaml:"ca_path" json:"ca_path"`
	ClientCert      string `yaml:"client_cert" json:"client_cert"`
	ClientKey       string `yaml:"client_key" json:"client_key"`

	Secret        string `yaml:"secret" json:"secret"`
	Key           string `yaml:"key" json:"key"`
	Dest          string `yaml:"dest" json:"dest"`
	Path          string `yaml:"path" json:"path"` // alias of dest
	Content       string `yaml:"-" json:"content"` // base64 payload; replaces reading dest
	Update        Bool   `yaml:"update" json:"update"`
	Version       Int    `yaml:"version" json:"version"`
	MountPoint    string `yaml:"mount_point" json:"mount_point"`
	CAS           Bool   `yaml:"cas" json:"cas"`
	ValueEncoding string `yaml:"value_encoding" json:"value_encoding"`
	Timeout       string `yaml:"timeout" json:"timeout"`

	CheckMode bool `yaml:"check_mode" json:"_ansible_check_mode"`
}

// Override returns p with every field that is set in hi replaced by hi's value.
func (p Params) Override(hi Params) Params {
	str := func(lo *string, v string) {
		if v != "" {
			*lo = v
		}
	}
	str(&p.URL, hi.URL)
	str(&p.AuthType, hi.AuthType)
	str(&p.Token, hi.Token)
	str(&p.Username, hi.Username)
	str(&p.Password, hi.Password)
	str(&p.RoleID, hi.RoleID)
	str(&p.SecretID, hi.SecretID)
	str(&p.Namespace, hi.Namespace)
	str(&p.LoginMountPoint, hi.LoginMountPoint)
	str(&p.CACert, hi.CACert)
	str(&p.CAPath, hi.CAPath)
	str(&p.ClientCert, hi.ClientCert)
	str(&p.ClientKey, hi.ClientKey)
	str(&p.Secret, hi.Secret)
	str(&p.Key, hi.Key)
	str(&p.Dest, hi.Dest)
	str(&p.Path, hi.Path)
	str(&p.Content, hi.Content)
	str(&p.MountPoint, hi.MountPoint)
	str(&p.ValueEncoding, hi.ValueEncoding)
	str(&p.Timeout, hi.Timeout)
	if hi.Verify.Set {
		p.Verify = hi.Verify
	}
	if hi.Update.Set {
		p.Update = hi.Update
	}
	if hi.CAS.Set {
		p.CAS = hi.CAS
	}
	if hi.Version != 0 {
		p.Version = hi.Version
	}
	p.CheckMode = p.CheckMode || hi.CheckMode
	return p
}

// DestPath returns dest, or path when only the alias was given.
func (p Params) DestPath() string {
	if p.Dest != "" {
		return p.Dest
	}
	return p.Path
}

// LoadParams reads parameters from a YAML file.
func LoadParams(path string) (Params, error) {
	var p Params
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// LoadArgsFile reads the JSON arguments file Ansible hands a binary module.
func LoadArgsFile(path string) (Params, error) {
	var p Params
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse module arguments %s: %w", path, err)
	}
	return p, nil
}

// Bool is an optional boolean. Besides true and false it accepts the string
// forms Ansible users write: "yes", "no", "on", "off", "1", "0".
type Bool struct {
	Set   bool
	Value bool
}

// NewBool returns a set Bool.
func NewBool(v bool) Bool { return Bool{Set: true, Value: v} }

// Or returns the value if set, otherwise def.
func (b Bool) Or(def bool) bool {
	if b.Set {
		return b.Value
	}
	return def
}

func (b *Bool) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*b = Bool{}
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := ParseBool(s)
	if err != nil {
		return err
	}
	*b = NewBool(v)
	return nil
}

func (b *Bool) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*b = Bool{}
		return nil
	}
	v, err := ParseBool(node.Value)
	if err != nil {
		return err
	}
	*b = NewBool(v)
	return nil
}

// Int is an integer that also accepts its quoted string form, as in
// version: "2".
type Int int

func (n *Int) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	return n.parse(s)
}

func (n *Int) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*n = 0
		return nil
	}
	return n.parse(node.Value)
}

func (n *Int) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*n = Int(v)
	return nil
}

// ParseBool parses strconv.ParseBool forms plus yes/no/on/off.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", s)
	}
	return v, nil
}
