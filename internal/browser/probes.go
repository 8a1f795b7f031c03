// File: internal/browser/probes.go
package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

// probeResult mirrors the object returned by pageProbeScript.
type probeResult struct {
	URL      string                       `json:"url"`
	Title    string                       `json:"title"`
	BodyText string                       `json:"bodyText"`
	Elements []schemas.InteractiveElement `json:"elements"`
	A11y     []schemas.A11yViolation      `json:"a11y"`
	Layout   []schemas.LayoutIssue        `json:"layout"`
}

// toPageState truncates the probe output and merges the drained event buffers.
func (p probeResult) toPageState(vp schemas.Viewport, console []string, httpErrs []schemas.HTTPError, bodyLimit, textLimit int, at time.Time) *schemas.PageState {
	elements := make([]schemas.InteractiveElement, 0, len(p.Elements))
	for _, el := range p.Elements {
		if el.Selector == "" {
			continue
		}
		el.Text = truncateRunes(strings.Join(strings.Fields(el.Text), " "), textLimit)
		elements = append(elements, el)
	}
	return &schemas.PageState{
		URL:            p.URL,
		Title:          p.Title,
		Elements:       elements,
		ConsoleErrors:  console,
		HTTPErrors:     httpErrs,
		A11yViolations: p.A11y,
		LayoutIssues:   p.Layout,
		Viewport:       vp,
		BodyText:       truncateRunes(p.BodyText, bodyLimit),
		Timestamp:      at,
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// scrollScript moves the page by most of a screen in the given direction.
func scrollScript(direction string) string {
	sign := 1
	if direction == schemas.ScrollUp {
		sign = -1
	}
	return fmt.Sprintf(`window.scrollBy(0, %d * Math.round(window.innerHeight * 0.8)); true`, sign)
}

// pageProbeScript collects interactive elements, a small set of accessibility
// rules and layout heuristics in one round trip. Rule ids follow axe-core.
const pageProbeScript = `(() => {
  const MAX_ELEMENTS = 150;
  const interactiveQuery = [
    'a[href]', 'button', 'input:not([type=hidden])', 'select', 'textarea',
    '[role=button]', '[role=link]', '[role=tab]', '[role=menuitem]', '[role=checkbox]',
    '[role=switch]', '[onclick]', 'summary'
  ].join(',');

  const cssEscape = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/[^a-zA-Z0-9_-]/g, '\\$&');

  const selectorFor = (el) => {
    if (el.id && document.querySelectorAll('#' + cssEscape(el.id)).length === 1) {
      return '#' + cssEscape(el.id);
    }
    for (const attr of ['data-testid', 'data-test', 'name', 'aria-label']) {
      const v = el.getAttribute(attr);
      if (v) {
        const sel = el.tagName.toLowerCase() + '[' + attr + '="' + v.replace(/"/g, '\\"') + '"]';
        if (document.querySelectorAll(sel).length === 1) return sel;
      }
    }
    const parts = [];
    let node = el;
    while (node && node.nodeType === 1 && node !== document.body && parts.length < 8) {
      let part = node.tagName.toLowerCase();
      if (node.id && document.querySelectorAll('#' + cssEscape(node.id)).length === 1) {
        parts.unshift('#' + cssEscape(node.id));
        return parts.join(' > ');
      }
      const parent = node.parentElement;
      if (parent) {
        const same = Array.from(parent.children).filter(c => c.tagName === node.tagName);
        if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(node) + 1) + ')';
      }
      parts.unshift(part);
      node = parent;
    }
    parts.unshift('body');
    return parts.join(' > ');
  };

  const roleOf = (el) => {
    const explicit = el.getAttribute('role');
    if (explicit) return explicit;
    const tag = el.tagName.toLowerCase();
    if (tag === 'a') return 'link';
    if (tag === 'button' || tag === 'summary') return 'button';
    if (tag === 'select') return 'combobox';
    if (tag === 'textarea') return 'textbox';
    if (tag === 'input') {
      const t = (el.getAttribute('type') || 'text').toLowerCase();
      if (['button', 'submit', 'reset', 'image'].includes(t)) return 'button';
      if (t === 'checkbox') return 'checkbox';
      if (t === 'radio') return 'radio';
      if (t === 'range') return 'slider';
      if (t === 'search') return 'searchbox';
      if (t === 'file') return 'file';
      return 'textbox';
    }
    return '';
  };

  const isVisible = (el, r) => {
    if (r.width === 0 || r.height === 0) return false;
    const st = getComputedStyle(el);
    return st.visibility !== 'hidden' && st.display !== 'none' && parseFloat(st.opacity || '1') > 0;
  };

  const labelOf = (el) => {
    const aria = el.getAttribute('aria-label');
    if (aria) return aria;
    const by = el.getAttribute('aria-labelledby');
    if (by) {
      const t = by.split(/\s+/).map(id => document.getElementById(id)).filter(Boolean).map(n => n.innerText).join(' ');
      if (t.trim()) return t;
    }
    if (el.labels && el.labels.length) return Array.from(el.labels).map(l => l.innerText).join(' ');
    return '';
  };

  const textOf = (el) => {
    const tag = el.tagName.toLowerCase();
    let t = '';
    if (tag === 'input' || tag === 'textarea' || tag === 'select') {
      t = labelOf(el) || el.getAttribute('placeholder') || el.getAttribute('name') || el.value || '';
    } else {
      t = (el.innerText || el.textContent || '').trim() || labelOf(el) || el.getAttribute('title') || '';
      if (!t) {
        const img = el.querySelector('img[alt]');
        if (img) t = img.getAttribute('alt');
      }
    }
    return t.trim();
  };

  const elements = [];
  const seen = new Set();
  for (const el of document.querySelectorAll(interactiveQuery)) {
    if (elements.length >= MAX_ELEMENTS) break;
    const r = el.getBoundingClientRect();
    const selector = selectorFor(el);
    if (seen.has(selector)) continue;
    seen.add(selector);
    elements.push({
      selector,
      tag: el.tagName.toLowerCase(),
      text: textOf(el),
      role: roleOf(el),
      visible: isVisible(el, r),
      disabled: !!(el.disabled || el.getAttribute('aria-disabled') === 'true'),
      bounds: { x: r.x, y: r.y, width: r.width, height: r.height },
    });
  }

  const a11y = [];
  const rule = (id, impact, description, help, nodes) => {
    if (nodes > 0) a11y.push({ id, impact, description, help, nodes });
  };
  rule('document-title', 'serious', 'Document does not have a non-empty <title> element',
    'Documents must have <title> element to aid in navigation', document.title.trim() ? 0 : 1);
  rule('html-has-lang', 'serious', '<html> element does not have a lang attribute',
    '<html> element must have a lang attribute', document.documentElement.getAttribute('lang') ? 0 : 1);
  rule('image-alt', 'critical', 'Images must have alternate text',
    'Ensures <img> elements have alternate text or a role of none or presentation',
    Array.from(document.querySelectorAll('img')).filter(i => !i.hasAttribute('alt') && !['none', 'presentation'].includes(i.getAttribute('role'))).length);
  rule('button-name', 'critical', 'Buttons must have discernible text',
    'Ensures buttons have discernible text',
    Array.from(document.querySelectorAll('button, [role=button]')).filter(b => !textOf(b)).length);
  rule('link-name', 'serious', 'Links must have discernible text',
    'Ensures links have discernible text',
    Array.from(document.querySelectorAll('a[href]')).filter(a => !textOf(a)).length);
  rule('label', 'critical', 'Form elements must have labels',
    'Ensures every form element has a label',
    Array.from(document.querySelectorAll('input:not([type=hidden]):not([type=button]):not([type=submit]):not([type=reset]):not([type=image]), select, textarea'))
      .filter(i => !labelOf(i) && !i.getAttribute('title')).length);

  const luminance = (rgb) => {
    const c = rgb.map(v => { v /= 255; return v <= 0.03928 ? v / 12.92 : Math.pow((v + 0.055) / 1.055, 2.4); });
    return 0.2126 * c[0] + 0.7152 * c[1] + 0.0722 * c[2];
  };
  const parseColor = (s) => {
    const m = s.match(/rgba?\(([^)]+)\)/);
    if (!m) return null;
    const p = m[1].split(',').map(x => parseFloat(x));
    return { rgb: p.slice(0, 3), a: p.length > 3 ? p[3] : 1 };
  };
  const backgroundOf = (el) => {
    for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
      const c = parseColor(getComputedStyle(n).backgroundColor);
      if (c && c.a > 0.9) return c.rgb;
      if (getComputedStyle(n).backgroundImage !== 'none') return null;
    }
    return [255, 255, 255];
  };
  let lowContrast = 0;
  let checked = 0;
  for (const el of document.querySelectorAll('p, span, a, button, label, h1, h2, h3, h4, li, td')) {
    if (checked++ > 300) break;
    if (!el.childNodes.length || !Array.from(el.childNodes).some(n => n.nodeType === 3 && n.textContent.trim())) continue;
    const r = el.getBoundingClientRect();
    if (!isVisible(el, r)) continue;
    const st = getComputedStyle(el);
    const fg = parseColor(st.color);
    const bg = backgroundOf(el);
    if (!fg || !bg || fg.a < 0.9) continue;
    const l1 = luminance(fg.rgb), l2 = luminance(bg);
    const ratio = (Math.max(l1, l2) + 0.05) / (Math.min(l1, l2) + 0.05);
    const size = parseFloat(st.fontSize);
    const large = size >= 24 || (size >= 18.66 && parseInt(st.fontWeight, 10) >= 700);
    if (ratio < (large ? 3 : 4.5)) lowContrast++;
  }
  rule('color-contrast', 'serious', 'Elements must have sufficient color contrast',
    'Ensures the contrast between foreground and background colors meets WCAG 2 AA thresholds', lowContrast);

  const layout = [];
  const vw = window.innerWidth;
  if (document.documentElement.scrollWidth > vw + 1) {
    layout.push({ kind: 'horizontal-overflow', description: 'Page is ' + document.documentElement.scrollWidth + 'px wide in a ' + vw + 'px viewport' });
  }
  for (const e of elements) {
    if (!e.visible || layout.length >= 10) continue;
    if (e.bounds.x + e.bounds.width > vw + 1 || e.bounds.x < -1) {
      layout.push({ kind: 'offscreen-control', selector: e.selector, description: 'Control "' + e.text.slice(0, 40) + '" extends outside the viewport' });
    }
  }

  return {
    url: location.href,
    title: document.title,
    bodyText: document.body ? document.body.innerText : '',
    elements,
    a11y,
    layout,
  };
})()`
