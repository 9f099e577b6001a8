package aggregate

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// svgNode is a generic element tree used to retag contributed drawings.
// Only the documented primitive set (line, text, path, ellipse and the
// root group) is rewritten; anything else passes through untouched.
type svgNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []svgNode  `xml:",any"`
}

func (n *svgNode) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (n *svgNode) setAttr(name, value string) {
	for i, a := range n.Attrs {
		if a.Name.Local == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

func (n *svgNode) addClass(class string) {
	if existing, ok := n.attr("class"); ok && existing != "" {
		n.setAttr("class", existing+" "+class)
		return
	}
	n.setAttr("class", class)
}

// retagContribution strips the outer <svg> wrapper from one panelist's
// submitted drawing and tags every drawable primitive with a class derived
// from the contributor id, so contributions stay individually stylable in
// the merged image. The group title is replaced with the panelist's name.
func retagContribution(svgMarkup, contributorID, panelistName string) (string, error) {
	if strings.TrimSpace(svgMarkup) == "" {
		return "", nil
	}
	var root svgNode
	if err := xml.Unmarshal([]byte(svgMarkup), &root); err != nil {
		return "", fmt.Errorf("parse contributed svg: %w", err)
	}

	var retag func(n *svgNode)
	retag = func(n *svgNode) {
		// Strip namespaces so the merged output serializes unqualified.
		n.XMLName.Space = ""
		kept := n.Attrs[:0]
		for _, a := range n.Attrs {
			if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
				continue
			}
			a.Name.Space = ""
			kept = append(kept, a)
		}
		n.Attrs = kept
		switch n.XMLName.Local {
		case "line", "text", "path", "ellipse":
			n.addClass(contributorID)
		case "g":
			if id, ok := n.attr("id"); ok && id == "paths" {
				n.setAttr("id", contributorID)
				n.addClass("panelistdrawing " + contributorID)
			}
		case "title":
			if class, ok := n.attr("class"); ok && class == "grouptitle" {
				n.Text = panelistName
			}
		}
		for i := range n.Children {
			retag(&n.Children[i])
		}
	}
	retag(&root)

	// Drop the <svg> wrapper, keeping its children only.
	var b strings.Builder
	for i := range root.Children {
		out, err := xml.Marshal(root.Children[i])
		if err != nil {
			return "", fmt.Errorf("serialize contributed svg: %w", err)
		}
		b.Write(out)
	}
	return b.String(), nil
}

// buildFullSVG wraps the merged primitives of one image in a single root
// sized to the first contributor's dimensions.
func buildFullSVG(d *CombinedDrawing) string {
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><g id="paths">%s</g></svg>`,
		d.Width, d.Height, d.Body,
	)
}
