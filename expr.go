package reportgen

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Мини-язык формул для переменных типа "formula": литералы, ссылки на
// переменные по точечным путям, вызовы функций, конкатенация через & и
// сравнения. Грамматика закрытая: ничего кроме перечисленного.
//
//	expr    := concat (cmpOp concat)?
//	concat  := unary ("&" unary)*
//	unary   := literal | funcCall | varRef | "(" expr ")"
//	cmpOp   := "=" | "<>" | "<" | ">" | "<=" | ">="

// dateLayout — единственный распознаваемый формат дат в формулах.
const dateLayout = "2006-01-02"

// ExprError — синтаксическая или семантическая ошибка формулы.
type ExprError struct {
	Expr string
	Msg  string
}

func (e *ExprError) Error() string {
	return fmt.Sprintf("формула %q: %s", e.Expr, e.Msg)
}

// --- лексер ---

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokIdent
	tokLParen
	tokRParen
	tokComma
	tokAmp
	tokOp // операторы сравнения
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case c == '&':
		l.pos++
		return token{kind: tokAmp, text: "&", pos: start}, nil
	case c == '"' || c == '\'':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			sb.WriteByte(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("незакрытая строка с позиции %d", start)
		}
		l.pos++ // закрывающая кавычка
		return token{kind: tokString, text: sb.String(), pos: start}, nil
	case c == '<':
		if l.pos+1 < len(l.src) && (l.src[l.pos+1] == '>' || l.src[l.pos+1] == '=') {
			op := l.src[l.pos : l.pos+2]
			l.pos += 2
			return token{kind: tokOp, text: op, pos: start}, nil
		}
		l.pos++
		return token{kind: tokOp, text: "<", pos: start}, nil
	case c == '>':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokOp, text: ">=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokOp, text: ">", pos: start}, nil
	case c == '=':
		l.pos++
		return token{kind: tokOp, text: "=", pos: start}, nil
	case c >= '0' && c <= '9' || c == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9':
		l.pos++
		for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil
	case isIdentStart(c):
		l.pos++
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	default:
		return token{}, fmt.Errorf("неожиданный символ %q на позиции %d", string(c), start)
	}
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

// Идентификаторы включают точки: ссылка на переменную — это путь.
func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '.'
}

// --- AST ---

type exprNode interface{ node() }

type litNode struct{ val interface{} }
type varRefNode struct{ path string }
type funcCallNode struct {
	name string
	args []exprNode
}
type concatNode struct{ parts []exprNode }
type compareNode struct {
	op          string
	left, right exprNode
}

func (litNode) node()      {}
func (varRefNode) node()   {}
func (funcCallNode) node() {}
func (concatNode) node()   {}
func (compareNode) node()  {}

// --- парсер ---

type parser struct {
	lex  lexer
	cur  token
	expr string
}

func parseExprString(src string) (exprNode, error) {
	p := &parser{lex: lexer{src: src}, expr: src}
	if err := p.advance(); err != nil {
		return nil, &ExprError{Expr: src, Msg: err.Error()}
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, &ExprError{Expr: src, Msg: err.Error()}
	}
	if p.cur.kind != tokEOF {
		return nil, &ExprError{Expr: src, Msg: fmt.Sprintf("лишний токен %q на позиции %d", p.cur.text, p.cur.pos)}
	}
	return n, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) parseExpr() (exprNode, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokOp {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		return &compareNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseConcat() (exprNode, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokAmp {
		return first, nil
	}
	parts := []exprNode{first}
	for p.cur.kind == tokAmp {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		parts = append(parts, n)
	}
	return &concatNode{parts: parts}, nil
}

func (p *parser) parseUnary() (exprNode, error) {
	switch p.cur.kind {
	case tokString:
		n := &litNode{val: p.cur.text}
		return n, p.advance()
	case tokNumber:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, fmt.Errorf("неразборчивое число %q", p.cur.text)
		}
		n := &litNode{val: f}
		return n, p.advance()
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("ожидалась ) на позиции %d", p.cur.pos)
		}
		return n, p.advance()
	case tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokLParen {
			return p.parseCall(name)
		}
		return &varRefNode{path: name}, nil
	default:
		return nil, fmt.Errorf("неожиданный токен %q на позиции %d", p.cur.text, p.cur.pos)
	}
}

func (p *parser) parseCall(name string) (exprNode, error) {
	// p.cur == '('
	if err := p.advance(); err != nil {
		return nil, err
	}
	call := &funcCallNode{name: strings.ToUpper(name)}
	if p.cur.kind == tokRParen {
		return call, p.advance()
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.cur.kind == tokRParen {
			return call, p.advance()
		}
		return nil, fmt.Errorf("ожидалась , или ) на позиции %d", p.cur.pos)
	}
}

// --- вычислитель ---

// Evaluator вычисляет формулы над снапшотом переменных. Отсутствующая
// ссылка даёт nil и предупреждение, а не ошибку, чтобы одна битая
// формула не рушила весь отчёт.
type Evaluator struct {
	snapshot *Snapshot
	now      time.Time
	diags    *Diagnostics
}

func NewEvaluator(snapshot *Snapshot, now time.Time, diags *Diagnostics) *Evaluator {
	return &Evaluator{snapshot: snapshot, now: now, diags: diags}
}

// Eval разбирает и вычисляет формулу. Ошибка возвращается только при
// нарушении грамматики или неизвестной функции.
func (e *Evaluator) Eval(src string) (interface{}, error) {
	n, err := parseExprString(src)
	if err != nil {
		return nil, err
	}
	return e.evalNode(src, n)
}

func (e *Evaluator) warn(subject, msg string) {
	if e.diags != nil {
		e.diags.Add(SeverityWarning, StageResolve, subject, msg)
	}
}

func (e *Evaluator) evalNode(src string, n exprNode) (interface{}, error) {
	switch v := n.(type) {
	case *litNode:
		return v.val, nil
	case *varRefNode:
		val, ok := e.snapshot.ResolvePath(v.path)
		if !ok {
			e.warn(v.path, "ссылка не разрешилась, подставлен nil")
			return nil, nil
		}
		return val, nil
	case *concatNode:
		var sb strings.Builder
		for _, part := range v.parts {
			pv, err := e.evalNode(src, part)
			if err != nil {
				return nil, err
			}
			sb.WriteString(toCellString(pv))
		}
		return sb.String(), nil
	case *compareNode:
		return e.evalCompare(src, v)
	case *funcCallNode:
		return e.evalCall(src, v)
	default:
		return nil, &ExprError{Expr: src, Msg: fmt.Sprintf("неизвестный узел %T", n)}
	}
}

// Сравнение: если обе стороны приводятся к числу, сравниваем числа,
// иначе строки.
func (e *Evaluator) evalCompare(src string, n *compareNode) (interface{}, error) {
	lv, err := e.evalNode(src, n.left)
	if err != nil {
		return nil, err
	}
	rv, err := e.evalNode(src, n.right)
	if err != nil {
		return nil, err
	}

	lf, lok := toFloat(lv)
	rf, rok := toFloat(rv)
	if lok && rok {
		switch n.op {
		case "=":
			return lf == rf, nil
		case "<>":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case ">":
			return lf > rf, nil
		case "<=":
			return lf <= rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}

	ls := toCellString(lv)
	rs := toCellString(rv)
	switch n.op {
	case "=":
		return ls == rs, nil
	case "<>":
		return ls != rs, nil
	case "<":
		return ls < rs, nil
	case ">":
		return ls > rs, nil
	case "<=":
		return ls <= rs, nil
	case ">=":
		return ls >= rs, nil
	}
	return nil, &ExprError{Expr: src, Msg: fmt.Sprintf("неизвестный оператор %q", n.op)}
}

func (e *Evaluator) evalCall(src string, n *funcCallNode) (interface{}, error) {
	switch n.name {
	case "IF":
		if len(n.args) != 3 {
			return nil, &ExprError{Expr: src, Msg: "IF принимает ровно 3 аргумента"}
		}
		cond, err := e.evalNode(src, n.args[0])
		if err != nil {
			return nil, err
		}
		// Ленивое ветвление: вычисляется только выбранная ветка.
		if truthy(cond) {
			return e.evalNode(src, n.args[1])
		}
		return e.evalNode(src, n.args[2])
	case "ISBLANK":
		if len(n.args) != 1 {
			return nil, &ExprError{Expr: src, Msg: "ISBLANK принимает ровно 1 аргумент"}
		}
		// Отсутствующая ссылка под ISBLANK — это и есть «пусто»,
		// предупреждение тут не нужно.
		if ref, ok := n.args[0].(*varRefNode); ok {
			v, found := e.snapshot.ResolvePath(ref.path)
			return !found || isBlank(v), nil
		}
		v, err := e.evalNode(src, n.args[0])
		if err != nil {
			return nil, err
		}
		return isBlank(v), nil
	case "MONTH":
		return e.evalDatePart(src, n, func(t time.Time) float64 { return float64(int(t.Month())) })
	case "YEAR":
		return e.evalDatePart(src, n, func(t time.Time) float64 { return float64(t.Year()) })
	case "TODAY":
		if len(n.args) != 0 {
			return nil, &ExprError{Expr: src, Msg: "TODAY не принимает аргументов"}
		}
		return e.now.Format(dateLayout), nil
	default:
		return nil, &ExprError{Expr: src, Msg: fmt.Sprintf("неизвестная функция %s", n.name)}
	}
}

func (e *Evaluator) evalDatePart(src string, n *funcCallNode, part func(time.Time) float64) (interface{}, error) {
	if len(n.args) != 1 {
		return nil, &ExprError{Expr: src, Msg: fmt.Sprintf("%s принимает ровно 1 аргумент", n.name)}
	}
	v, err := e.evalNode(src, n.args[0])
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(toCellString(v))
	t, perr := time.Parse(dateLayout, s)
	if perr != nil {
		e.warn(src, fmt.Sprintf("%s: значение %q не является датой %s", n.name, s, dateLayout))
		return nil, nil
	}
	return part(t), nil
}

func truthy(v interface{}) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case bool:
		return vv
	case float64:
		return vv != 0
	case string:
		return vv != ""
	default:
		return true
	}
}
