package browser

// Page-side helpers. Each is a function expression called with JSON
// arguments by callJS. Invalid selectors are treated as "no match".

const jsHelpers = `
const q1 = (root, sel) => { try { return root.querySelector(sel); } catch (e) { return null; } };
const up = (el, sel) => { try { return el.closest(sel); } catch (e) { return null; } };
const attrsOf = el => { const o = {}; for (const a of el.attributes) o[a.name] = a.value; return o; };
const textOf = el => (el.textContent || '').trim();
const firstOf = sels => { for (const s of sels) { const el = q1(document, s); if (el) return [s, el]; } return [null, null]; };
`

func withHelpers(body string) string {
	return "(...args) => {" + jsHelpers + "return (" + body + ")(...args); }"
}

var (
	// jsSnapshot returns the rows matching q.row under q.root, tagging each
	// with a stable key attribute.
	jsSnapshot = withHelpers(`(q) => {
	const base = q.root ? q1(document, q.root) : document;
	if (!base) return null;
	let rows = [];
	try { rows = Array.from(base.querySelectorAll(q.row)); } catch (e) { return []; }
	return rows.map(row => {
		if (!row.hasAttribute(q.keyAttr)) {
			window.__airminalSeq = (window.__airminalSeq || 0) + 1;
			row.setAttribute(q.keyAttr, 'n' + window.__airminalSeq);
		}
		const probes = {};
		for (const [name, sel] of Object.entries(q.probes || {})) {
			const p = { found: false, closest: false };
			const i = sel.indexOf(q.scopeSep);
			if (i >= 0) {
				const scope = up(row, sel.slice(0, i));
				const el = scope && q1(scope, sel.slice(i + q.scopeSep.length));
				if (el) { p.found = true; p.text = textOf(el); p.attrs = attrsOf(el); }
			} else {
				const el = q1(row, sel);
				if (el) { p.found = true; p.text = textOf(el); p.attrs = attrsOf(el); }
				const c = up(row, sel);
				if (c) { p.closest = true; p.closestText = textOf(c); p.closestAttrs = attrsOf(c); }
			}
			probes[name] = p;
		}
		const st = getComputedStyle(row);
		let end = st.alignSelf === 'flex-end' || st.justifySelf === 'end' || st.textAlign === 'right';
		const parent = row.parentElement;
		if (!end && parent) {
			const r = row.getBoundingClientRect(), pr = parent.getBoundingClientRect();
			end = r.width > 0 && r.width < pr.width && (r.left - pr.left) > (pr.right - r.right) + 1;
		}
		return {
			key: row.getAttribute(q.keyAttr),
			attrs: attrsOf(row),
			classes: Array.from(row.classList),
			text: textOf(row),
			alignedEnd: end,
			probes,
		};
	});
}`)

	// jsFirst returns the first selector that matches, with its text and
	// attributes.
	jsFirst = withHelpers(`(sels) => {
	const [s, el] = firstOf(sels);
	if (!el) return { ok: false };
	return { ok: true, selector: s, text: textOf(el), attrs: attrsOf(el) };
}`)

	// jsClick clicks the first match.
	jsClick = withHelpers(`(sels) => {
	const [s, el] = firstOf(sels);
	if (!el) return '';
	el.scrollIntoView({ block: 'center' });
	el.click();
	return s;
}`)

	// jsClickText clicks the first button-like element inside scope whose
	// trimmed text equals one of texts.
	jsClickText = withHelpers(`(scope, texts) => {
	const base = scope ? q1(document, scope) : document;
	if (!base) return '';
	const cands = base.querySelectorAll('button, [role="button"], a, span, div');
	for (const want of texts) {
		for (const el of cands) {
			if (textOf(el) !== want) continue;
			const target = up(el, 'button, [role="button"], a') || el;
			target.click();
			return want;
		}
	}
	return '';
}`)

	// jsFocus focuses the element.
	jsFocus = withHelpers(`(sel) => {
	const el = q1(document, sel);
	if (!el) return false;
	el.focus();
	return true;
}`)

	// jsClear empties an input, textarea or contenteditable.
	jsClear = withHelpers(`(sel) => {
	const el = q1(document, sel);
	if (!el) return false;
	el.focus();
	if ('value' in el && !el.isContentEditable) {
		el.value = '';
	} else {
		document.execCommand('selectAll', false, null);
		document.execCommand('delete', false, null);
	}
	return true;
}`)

	// jsNotifyInput fires an input event so frameworks see the new value.
	jsNotifyInput = withHelpers(`(sel, data) => {
	const el = q1(document, sel);
	if (!el) return false;
	el.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'insertText', data }));
	return true;
}`)
)
