// Package catalog хранит именованные определения workflow.
//
// Встроенные определения лежат в workflows/*.yaml и встраиваются в бинарь.
// Дополнительные загружаются из CATALOG_DIR.
package catalog
