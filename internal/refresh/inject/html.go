/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package inject

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// injectScript parses htmlStr and appends script to <head>, or prepends it
// to <body> if there is no head, falling back to a string replace if the
// document fails to parse.
func injectScript(htmlStr, script string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return fallbackInject(htmlStr, script)
	}

	scriptNodes, err := html.ParseFragment(strings.NewReader(script), &html.Node{
		Type: html.ElementNode,
		Data: "body",
	})
	if err != nil || len(scriptNodes) == 0 {
		return fallbackInject(htmlStr, script)
	}

	if head := findElement(doc, "head"); head != nil {
		for _, n := range scriptNodes {
			head.AppendChild(n)
		}
	} else if body := findElement(doc, "body"); body != nil {
		for i := len(scriptNodes) - 1; i >= 0; i-- {
			if body.FirstChild != nil {
				body.InsertBefore(scriptNodes[i], body.FirstChild)
			} else {
				body.AppendChild(scriptNodes[i])
			}
		}
	} else {
		return fallbackInject(htmlStr, script)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return fallbackInject(htmlStr, script)
	}
	return buf.String()
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func fallbackInject(htmlStr, script string) string {
	if strings.Contains(htmlStr, "</head>") {
		return strings.Replace(htmlStr, "</head>", script+"\n</head>", 1)
	}
	return htmlStr + "\n" + script
}
