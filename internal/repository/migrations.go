package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []interface{} {
	return []interface{}{
		// Lookup tables
		&models.ElementType{},
		&models.DeviceType{},
		&models.LinkType{},

		// Assets
		&models.AssetElement{},
		&models.ExtAttribute{},
		&models.AssetLink{},
		&models.GroupRelation{},

		// Audit
		&models.AssetEvent{},
	}
}

// Migrate creates the schema, seeds the lookup tables and (re)creates the views.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}

	migrations := []func(*gorm.DB) error{
		seedLookupTables,
		addForeignKeys,
		createSuperParentView,
		createElementExtView,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

func seedLookupTables(db *gorm.DB) error {
	types := make([]models.ElementType, 0, models.TypeVirtualMachine+1)
	for id := models.TypeUnknown; id <= models.TypeVirtualMachine; id++ {
		types = append(types, models.ElementType{ID: id, Name: models.TypeName(id)})
	}
	subtypes := make([]models.DeviceType, 0, models.SubtypeGPO+1)
	for id := models.SubtypeUnknown; id <= models.SubtypeGPO; id++ {
		subtypes = append(subtypes, models.DeviceType{ID: id, Name: models.SubtypeName(id)})
	}
	links := []models.LinkType{{ID: models.LinkTypePowerChain, Name: "power chain"}}

	for _, rows := range []any{&types, &subtypes, &links} {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(rows).Error; err != nil {
			return fmt.Errorf("seed lookup table: %w", err)
		}
	}
	return nil
}

// addForeignKeys wires the relation tables to t_bios_asset_element.
func addForeignKeys(db *gorm.DB) error {
	stmts := []string{
		`ALTER TABLE t_bios_asset_element DROP CONSTRAINT IF EXISTS fk_element_parent`,
		`ALTER TABLE t_bios_asset_element ADD CONSTRAINT fk_element_parent
			FOREIGN KEY (id_parent) REFERENCES t_bios_asset_element(id_asset_element) ON DELETE RESTRICT`,
		`ALTER TABLE t_bios_asset_ext_attributes DROP CONSTRAINT IF EXISTS fk_ext_element`,
		`ALTER TABLE t_bios_asset_ext_attributes ADD CONSTRAINT fk_ext_element
			FOREIGN KEY (id_asset_element) REFERENCES t_bios_asset_element(id_asset_element) ON DELETE CASCADE`,
		`ALTER TABLE t_bios_asset_link DROP CONSTRAINT IF EXISTS fk_link_src`,
		`ALTER TABLE t_bios_asset_link ADD CONSTRAINT fk_link_src
			FOREIGN KEY (id_asset_device_src) REFERENCES t_bios_asset_element(id_asset_element) ON DELETE RESTRICT`,
		`ALTER TABLE t_bios_asset_link DROP CONSTRAINT IF EXISTS fk_link_dest`,
		`ALTER TABLE t_bios_asset_link ADD CONSTRAINT fk_link_dest
			FOREIGN KEY (id_asset_device_dest) REFERENCES t_bios_asset_element(id_asset_element) ON DELETE RESTRICT`,
		`ALTER TABLE t_bios_asset_group_relation DROP CONSTRAINT IF EXISTS fk_group_element`,
		`ALTER TABLE t_bios_asset_group_relation ADD CONSTRAINT fk_group_element
			FOREIGN KEY (id_asset_element) REFERENCES t_bios_asset_element(id_asset_element) ON DELETE CASCADE`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("add foreign keys: %w", err)
		}
	}
	return nil
}

// superParentViewSQL joins the element table onto itself once per level.
func superParentViewSQL() string {
	var cols, joins strings.Builder
	cols.WriteString(`e.id_asset_element, e.name, e.id_type, e.id_subtype,
	t.name AS type_name, d.name AS subtype_name, e.status, e.priority, e.asset_tag`)
	prev := "e"
	for i := 1; i <= models.MaxParentLevels; i++ {
		p := fmt.Sprintf("p%d", i)
		fmt.Fprintf(&cols, ",\n\t%[1]s.id_asset_element AS id_parent%[2]d, %[1]s.name AS name_parent%[2]d, %[1]s.id_type AS id_type_parent%[2]d", p, i)
		fmt.Fprintf(&joins, "\nLEFT JOIN t_bios_asset_element %s ON %s.id_asset_element = %s.id_parent", p, p, prev)
		prev = p
	}
	return `CREATE OR REPLACE VIEW v_bios_asset_element_super_parent AS
SELECT ` + cols.String() + `
FROM t_bios_asset_element e
LEFT JOIN t_bios_asset_element_type t ON t.id_asset_element_type = e.id_type
LEFT JOIN t_bios_asset_device_type d ON d.id_asset_device_type = e.id_subtype` + joins.String()
}

func createSuperParentView(db *gorm.DB) error {
	if err := db.Exec(`DROP VIEW IF EXISTS v_bios_asset_element_super_parent`).Error; err != nil {
		return err
	}
	return db.Exec(superParentViewSQL()).Error
}

func createElementExtView(db *gorm.DB) error {
	return db.Exec(`
		CREATE OR REPLACE VIEW v_web_asset_element_ext AS
		SELECT e.id_asset_element AS id, e.name, COALESCE(x.value, '') AS ext_name, e.id_type, e.id_subtype
		FROM t_bios_asset_element e
		LEFT JOIN t_bios_asset_ext_attributes x
			ON x.id_asset_element = e.id_asset_element AND x.keytag = 'name'
	`).Error
}
