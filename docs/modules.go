package docs

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
	"github.com/hashicorp/dynamic-datasource-sdk/config/postprocess"
)

// Root documents the top level of a configuration document.
func Root() (*Documentation, error) {
	d, err := New(FromConfig(&config.Config{}))
	if err != nil {
		return nil, err
	}

	d.Description("A dynamic data source configuration, stored as the value of " +
		config.PropertyPrefix + ".<name>.")
	d.Example(`{
  "name": "orders",
  "datasource": [
    {"name": "primary", "url": "jdbc:mysql://127.0.0.1:3306/orders", "username": "root"},
    {"name": "replica", "url": "jdbc:mysql://127.0.0.2:3306/orders"}
  ],
  "transaction": {"timeout": "30s"}
}`)

	d.SetField("name", "name of the configuration",
		Summary("defaults to the last segment of the property key"))
	d.SetField("dynamic", "whether the data source can be reactivated at runtime")
	d.SetField("primary", "whether this configuration provides the primary data source")
	d.SetField(config.ModuleDataSource, "ordered list of data source definitions",
		Summary(
			"each entry inherits every key it does not set from the entry before it,",
			"except for name and primary. The entry marked primary, or else the first",
			"entry, becomes the delegate.",
		))
	d.SetField(config.ModuleHighAvailabilityDataSource, "data source lists by zone",
		Summary(
			"the list of the zone set on the context is used. Without a zone the",
			"list of the default zone is used. Must not be set together with",
			config.ModuleDataSource+".",
		))

	return d, nil
}

// Module documents the named configuration module. It returns an error for
// modules it has no documentation for.
func Module(name string) (*Documentation, error) {
	switch name {
	case config.ModuleDataSource, config.ModuleHighAvailabilityDataSource:
		return dataSourceDocs(name)
	case config.ModuleTransaction:
		return transactionDocs()
	case config.ModuleSharding:
		return moduleDocs(name, &config.Sharding{}, "Sharding rules over the data sources.")
	case config.ModuleMapper:
		return moduleDocs(name, &config.Mapper{}, "Mapper packages and locations scanned for the data sources.")
	}

	return nil, fmt.Errorf("no documentation for module %q", name)
}

func moduleDocs(name string, v config.Named, description string) (*Documentation, error) {
	d, err := New(WithModule(name), FromConfig(v))
	if err != nil {
		return nil, err
	}

	d.Description(description)
	d.SetField("name", "name of the module configuration",
		Default(fmt.Sprintf("<config name>.%s", name)))
	return d, nil
}

func transactionDocs() (*Documentation, error) {
	d, err := moduleDocs(config.ModuleTransaction, &config.Transaction{},
		"The transaction manager bound to the delegate data source.")
	if err != nil {
		return nil, err
	}

	d.SetField("timeout", "timeout of every transaction",
		Property(postprocess.TransactionTimeoutProperty),
		Summary("plain numbers are milliseconds"))
	d.SetField("isolation", "transaction isolation level",
		Summary("one of read-uncommitted, read-committed, repeatable-read or serializable"),
		Default("default"))
	d.SetField("read-only", "whether transactions are read only", Default("false"))
	d.SetField("customizers", "names of the customizers applied to the transaction manager")
	return d, nil
}

func dataSourceDocs(name string) (*Documentation, error) {
	d, err := New(WithModule(name))
	if err != nil {
		return nil, err
	}

	d.Description("A data source definition. Keys are pool properties; " +
		"dashed and underscored keys are accepted for the well known ones.")

	str := reflect.TypeOf("").String()
	for _, f := range []struct {
		key, synopsis string
	}{
		{config.KeyName, "name of the pool"},
		{config.KeyURL, "JDBC url, for example jdbc:mysql://host:3306/db"},
		{config.KeyUsername, "user to connect as"},
		{config.KeyPassword, "password of the user"},
		{config.KeyDriverClassName, "JDBC driver class, used when url is not set"},
		{config.KeyType, "pool implementation class"},
		{config.KeyPrimary, "whether this entry becomes the delegate"},
	} {
		d.OverrideField(&FieldDocs{
			Field:    f.key,
			Type:     str,
			Synopsis: f.synopsis,
			Optional: f.key != config.KeyURL,
		})
	}

	return d, nil
}
