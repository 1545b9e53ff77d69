package isql

import "testing"

const sampleOutput = `
NUM          NAME                     TOTAL
============ ======================== ============
           1 Первый контрагент              100.50
           2 Второй                          20.00
           3 <null>                           0.00
`

func TestParseOutput(t *testing.T) {
	got, err := ParseOutput(sampleOutput)
	if err != nil {
		t.Fatal(err)
	}
	res := got.(map[string]interface{})
	headers := res["headers"].([]interface{})
	rows := res["rows"].([]interface{})

	if len(headers) != 3 || headers[0] != "NUM" || headers[2] != "TOTAL" {
		t.Fatalf("headers => %v", headers)
	}
	if len(rows) != 3 {
		t.Fatalf("rows => %d", len(rows))
	}

	first := rows[0].([]interface{})
	if first[0] != "1" || first[1] != "Первый контрагент" || first[2] != "100.50" {
		t.Fatalf("первая строка => %v", first)
	}
	third := rows[2].([]interface{})
	if third[1] != nil {
		t.Fatalf("<null> должен стать nil, а не %v", third[1])
	}
}

func TestParseOutput_EmptyAndNoResult(t *testing.T) {
	got, err := ParseOutput("")
	if err != nil {
		t.Fatal(err)
	}
	res := got.(map[string]interface{})
	if len(res["headers"].([]interface{})) != 0 || len(res["rows"].([]interface{})) != 0 {
		t.Fatalf("пустой вывод => %v", res)
	}
}

func TestParseOutput_RepeatedHeaderBlocks(t *testing.T) {
	// постраничный вывод повторяет заголовок и разделитель
	out := `
A
======
x
A
======
y
`
	got, err := ParseOutput(out)
	if err != nil {
		t.Fatal(err)
	}
	res := got.(map[string]interface{})
	rows := res["rows"].([]interface{})
	// повторный заголовок попадает в данные как обычная строка "A",
	// повторный разделитель пропускается
	if len(rows) != 3 {
		t.Fatalf("rows => %v", rows)
	}
}

func TestColumnSpans(t *testing.T) {
	spans := columnSpans("==== ======  ==")
	if len(spans) != 3 {
		t.Fatalf("spans => %v", spans)
	}
	if spans[0] != [2]int{0, 4} || spans[1] != [2]int{5, 11} || spans[2] != [2]int{13, 15} {
		t.Fatalf("spans => %v", spans)
	}
}

func TestIsSeparator(t *testing.T) {
	if !isSeparator("==== ==") || isSeparator("abc") || isSeparator("   ") {
		t.Fatal("isSeparator ведёт себя неверно")
	}
}
