// Package xml provides the document model shared by the apparatus pipeline.
// It wraps xmlquery nodes with parsing, XPath queries, and the tree-building
// primitives the normalization and collation transformations need. All
// transformations in this codebase are pure: they construct new trees and
// never mutate their input, so a caller can always compare before and after.
package xml

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/JuniperApparatus/core/encoding"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents a single XML node (element or text).
type Node struct {
	node *xmlquery.Node
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	reader := bytes.NewReader(data)
	root, err := xmlquery.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an XML string and returns a Document.
func ParseString(s string) (*Document, error) {
	return Parse([]byte(s))
}

// NewDocument creates a document with the given element as its root.
func NewDocument(root *Node) *Document {
	docNode := &xmlquery.Node{Type: xmlquery.DocumentNode}
	doc := &Document{root: docNode}
	(&Node{node: docNode}).AppendChild(root)
	return doc
}

// Root returns the root element of the document, or nil if the document
// has no element content.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query against the document and returns all matches.
func (d *Document) XPath(expr string) ([]*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes, err := xmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// XPathFirst executes an XPath query and returns the first match, or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	node, err := xmlquery.Query(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	if node == nil {
		return nil, nil
	}
	return &Node{node: node}, nil
}

// Serialize converts the document back to XML bytes.
func (d *Document) Serialize() []byte {
	if d.root == nil {
		return nil
	}
	return []byte(d.root.OutputXML(true))
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	root := d.Root()
	if root == nil {
		return &Document{root: &xmlquery.Node{Type: xmlquery.DocumentNode}}
	}
	return NewDocument(root.Clone())
}

// NewElement creates a detached element node with the given tag.
func NewElement(tag string) *Node {
	return &Node{node: &xmlquery.Node{Type: xmlquery.ElementNode, Data: tag}}
}

// NewText creates a detached text node.
func NewText(text string) *Node {
	return &Node{node: &xmlquery.Node{Type: xmlquery.TextNode, Data: text}}
}

// IsElement reports whether the node is an element.
func (n *Node) IsElement() bool {
	return n != nil && n.node != nil && n.node.Type == xmlquery.ElementNode
}

// IsText reports whether the node is a text node.
func (n *Node) IsText() bool {
	return n != nil && n.node != nil && n.node.Type == xmlquery.TextNode
}

// Name returns the element tag (local name), or "" for non-elements.
func (n *Node) Name() string {
	if !n.IsElement() {
		return ""
	}
	return n.node.Data
}

// Text returns the data of a text node, or the concatenated text content
// of an element.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	if n.node.Type == xmlquery.TextNode {
		return n.node.Data
	}
	return n.node.InnerText()
}

// SetText replaces the data of a text node.
func (n *Node) SetText(text string) {
	if n.IsText() {
		n.node.Data = text
	}
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(name string) string {
	if !n.IsElement() {
		return ""
	}
	return n.node.SelectAttr(name)
}

// HasAttr reports whether the named attribute is present.
func (n *Node) HasAttr(name string) bool {
	if !n.IsElement() {
		return false
	}
	for _, attr := range n.node.Attr {
		if attr.Name.Local == name {
			return true
		}
	}
	return false
}

// SetAttr sets the named attribute, replacing any existing value.
func (n *Node) SetAttr(name, value string) {
	if !n.IsElement() {
		return
	}
	for i, attr := range n.node.Attr {
		if attr.Name.Local == name {
			n.node.Attr[i].Value = value
			return
		}
	}
	xmlquery.AddAttr(n.node, name, value)
}

// Attributes returns all attributes of the node keyed by local name.
func (n *Node) Attributes() map[string]string {
	if !n.IsElement() {
		return nil
	}
	attrs := make(map[string]string, len(n.node.Attr))
	for _, attr := range n.node.Attr {
		attrs[attr.Name.Local] = attr.Value
	}
	return attrs
}

// Parent returns the parent node, or nil.
func (n *Node) Parent() *Node {
	if n == nil || n.node == nil || n.node.Parent == nil {
		return nil
	}
	return &Node{node: n.node.Parent}
}

// NextSibling returns the following sibling node (including text), or nil.
func (n *Node) NextSibling() *Node {
	if n == nil || n.node == nil || n.node.NextSibling == nil {
		return nil
	}
	return &Node{node: n.node.NextSibling}
}

// NextElementSibling returns the following element sibling, skipping any
// intervening text, or nil.
func (n *Node) NextElementSibling() *Node {
	if n == nil || n.node == nil {
		return nil
	}
	for sib := n.node.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == xmlquery.ElementNode {
			return &Node{node: sib}
		}
	}
	return nil
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Nodes returns all child nodes, elements and text alike, in document order.
func (n *Node) Nodes() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var nodes []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode || child.Type == xmlquery.TextNode {
			nodes = append(nodes, &Node{node: child})
		}
	}
	return nodes
}

// AppendChild attaches child as the last child of n. The child is detached
// from any previous parent first.
func (n *Node) AppendChild(child *Node) {
	if n == nil || n.node == nil || child == nil || child.node == nil {
		return
	}
	child.Detach()
	cn := child.node
	cn.Parent = n.node
	cn.NextSibling = nil
	if n.node.FirstChild == nil {
		n.node.FirstChild = cn
		cn.PrevSibling = nil
	} else {
		last := n.node.LastChild
		last.NextSibling = cn
		cn.PrevSibling = last
	}
	n.node.LastChild = cn
}

// PrependChild attaches child as the first child of n.
func (n *Node) PrependChild(child *Node) {
	if n == nil || n.node == nil || child == nil || child.node == nil {
		return
	}
	child.Detach()
	cn := child.node
	cn.Parent = n.node
	cn.PrevSibling = nil
	cn.NextSibling = n.node.FirstChild
	if n.node.FirstChild != nil {
		n.node.FirstChild.PrevSibling = cn
	} else {
		n.node.LastChild = cn
	}
	n.node.FirstChild = cn
}

// InsertAfter inserts sibling immediately after n under the same parent.
func (n *Node) InsertAfter(sibling *Node) {
	if n == nil || n.node == nil || n.node.Parent == nil || sibling == nil || sibling.node == nil {
		return
	}
	sibling.Detach()
	sn := sibling.node
	sn.Parent = n.node.Parent
	sn.PrevSibling = n.node
	sn.NextSibling = n.node.NextSibling
	if n.node.NextSibling != nil {
		n.node.NextSibling.PrevSibling = sn
	} else {
		n.node.Parent.LastChild = sn
	}
	n.node.NextSibling = sn
}

// Detach removes the node from its parent, leaving it free-standing.
func (n *Node) Detach() {
	if n == nil || n.node == nil || n.node.Parent == nil {
		return
	}
	parent := n.node.Parent
	if parent.FirstChild == n.node {
		parent.FirstChild = n.node.NextSibling
	}
	if parent.LastChild == n.node {
		parent.LastChild = n.node.PrevSibling
	}
	if n.node.PrevSibling != nil {
		n.node.PrevSibling.NextSibling = n.node.NextSibling
	}
	if n.node.NextSibling != nil {
		n.node.NextSibling.PrevSibling = n.node.PrevSibling
	}
	n.node.Parent = nil
	n.node.PrevSibling = nil
	n.node.NextSibling = nil
}

// Clone returns a detached deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil || n.node == nil {
		return nil
	}
	return &Node{node: cloneNode(n.node)}
}

func cloneNode(n *xmlquery.Node) *xmlquery.Node {
	clone := &xmlquery.Node{
		Type:         n.Type,
		Data:         n.Data,
		Prefix:       n.Prefix,
		NamespaceURI: n.NamespaceURI,
	}
	if len(n.Attr) > 0 {
		clone.Attr = make([]xmlquery.Attr, len(n.Attr))
		copy(clone.Attr, n.Attr)
	}
	wrapper := &Node{node: clone}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		wrapper.AppendChild(&Node{node: cloneNode(child)})
	}
	return clone
}

// Query executes an XPath query relative to this node.
func (n *Node) Query(expr string) ([]*Node, error) {
	if n == nil || n.node == nil {
		return nil, nil
	}
	nodes, err := xmlquery.QueryAll(n.node, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	result := make([]*Node, len(nodes))
	for i, q := range nodes {
		result[i] = &Node{node: q}
	}
	return result, nil
}

// QueryFirst executes a relative XPath query and returns the first match, or nil.
func (n *Node) QueryFirst(expr string) (*Node, error) {
	nodes, err := n.Query(expr)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

// OuterXML serializes the node including its own tag.
func (n *Node) OuterXML() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.OutputXML(true)
}

// InnerXML serializes the node's children only.
func (n *Node) InnerXML() string {
	if n == nil || n.node == nil {
		return ""
	}
	var buf bytes.Buffer
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		buf.WriteString(child.OutputXML(true))
	}
	return buf.String()
}

// Equal reports structural equality of two nodes: same node kind, tag,
// attributes, text, and recursively equal children. Attribute order is
// not significant; text is compared exactly.
func Equal(a, b *Node) bool {
	if a == nil || a.node == nil || b == nil || b.node == nil {
		return (a == nil || a.node == nil) && (b == nil || b.node == nil)
	}
	return equalNodes(a.node, b.node)
}

func equalNodes(a, b *xmlquery.Node) bool {
	if a.Type != b.Type || a.Data != b.Data {
		return false
	}
	if !equalAttrs(a, b) {
		return false
	}
	ac, bc := a.FirstChild, b.FirstChild
	for ac != nil && bc != nil {
		if !equalNodes(ac, bc) {
			return false
		}
		ac, bc = ac.NextSibling, bc.NextSibling
	}
	return ac == nil && bc == nil
}

func equalAttrs(a, b *xmlquery.Node) bool {
	if len(a.Attr) != len(b.Attr) {
		return false
	}
	as := attrPairs(a)
	bs := attrPairs(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func attrPairs(n *xmlquery.Node) []string {
	pairs := make([]string, 0, len(n.Attr))
	for _, attr := range n.Attr {
		pairs = append(pairs, attr.Name.Local+"="+encoding.EscapeXMLAttr(attr.Value))
	}
	sort.Strings(pairs)
	return pairs
}

// EqualDocuments reports structural equality of two documents' roots.
func EqualDocuments(a, b *Document) bool {
	return Equal(a.Root(), b.Root())
}

// CollapseWhitespace removes text nodes that consist solely of whitespace
// from the node's subtree. Transcription sources are pretty-printed; the
// inter-element indentation carries no content and would otherwise leak
// into serialization comparisons.
func (n *Node) CollapseWhitespace() {
	if n == nil || n.node == nil {
		return
	}
	child := n.node.FirstChild
	for child != nil {
		next := child.NextSibling
		if child.Type == xmlquery.TextNode && strings.TrimSpace(child.Data) == "" {
			(&Node{node: child}).Detach()
		} else if child.Type == xmlquery.ElementNode {
			(&Node{node: child}).CollapseWhitespace()
		}
		child = next
	}
}
